// Package seed loads the initial users, checklist templates and sample calls
// of a fresh installation from YAML and writes the missing ones.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/auth"
	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/repo"
)

//go:embed seed.yaml
var defaultData []byte

// User is a seeded account. Password is stored hashed.
type User struct {
	Email    string      `yaml:"email"`
	Name     string      `yaml:"name"`
	Role     domain.Role `yaml:"role"`
	Password string      `yaml:"password"`
}

// Item is one checklist question.
type Item struct {
	Title       string                `yaml:"title"`
	Description string                `yaml:"description"`
	Evaluation  domain.EvaluationType `yaml:"evaluation"`
}

// Checklist is a seeded template. CreatedBy references a user by email.
type Checklist struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Default     bool   `yaml:"default"`
	CreatedBy   string `yaml:"created_by"`
	Items       []Item `yaml:"items"`
}

// Call is a sample call record.
type Call struct {
	ID        string         `yaml:"id"`
	DealID    string         `yaml:"deal_id"`
	CreatedAt time.Time      `yaml:"created_at"`
	Employee  string         `yaml:"employee"`
	Manager   string         `yaml:"manager"`
	Payload   map[string]any `yaml:"payload"`
}

// Data is the content of a seed file.
type Data struct {
	Users      []User      `yaml:"users"`
	Checklists []Checklist `yaml:"checklists"`
	Calls      []Call      `yaml:"calls"`
}

// Result counts the records Apply created.
type Result struct {
	Users      int
	Checklists int
	Calls      int
}

// Default returns the embedded seed data.
func Default() (*Data, error) {
	return Parse(defaultData)
}

// Parse decodes and validates a seed file.
func Parse(b []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Data) validate() error {
	emails := make(map[string]bool, len(d.Users))
	for i, u := range d.Users {
		if strings.TrimSpace(u.Email) == "" || u.Password == "" {
			return fmt.Errorf("seed: users[%d]: email and password are required", i)
		}
		if !u.Role.Valid() {
			return fmt.Errorf("seed: users[%d]: unknown role %q", i, u.Role)
		}
		emails[strings.ToLower(u.Email)] = true
	}
	for i, c := range d.Checklists {
		if c.ID == "" || c.Title == "" || len(c.Items) == 0 {
			return fmt.Errorf("seed: checklists[%d]: id, title and items are required", i)
		}
		if !emails[strings.ToLower(c.CreatedBy)] {
			return fmt.Errorf("seed: checklists[%d]: created_by %q is not a seeded user", i, c.CreatedBy)
		}
		for j, it := range c.Items {
			if it.Title == "" || !it.Evaluation.Valid() {
				return fmt.Errorf("seed: checklists[%d].items[%d]: title and a valid evaluation are required", i, j)
			}
		}
	}
	for i, c := range d.Calls {
		if c.ID == "" || c.DealID == "" || c.Employee == "" || c.Manager == "" {
			return fmt.Errorf("seed: calls[%d]: id, deal_id, employee and manager are required", i)
		}
	}
	return nil
}

// Apply writes every record of d that does not exist yet, in one
// transaction. Running it twice creates nothing the second time.
//
// A seeded default template loses its default flag when another default
// already exists.
func Apply(ctx context.Context, db *gorm.DB, d *Data, bcryptCost int) (Result, error) {
	var res Result
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make(map[string]string, len(d.Users))
		for _, su := range d.Users {
			email := strings.ToLower(strings.TrimSpace(su.Email))
			u, err := repo.GetUserByEmail(ctx, tx, email)
			if err == nil {
				ids[email] = u.ID
				continue
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			hash, err := auth.HashPassword(su.Password, bcryptCost)
			if err != nil {
				return err
			}
			nu := &domain.User{ID: uuid.NewString(), Email: email, Name: su.Name, PasswordHash: hash, Role: su.Role}
			if err := repo.CreateUser(ctx, tx, nu); err != nil {
				return fmt.Errorf("seed: user %s: %w", email, err)
			}
			ids[email] = nu.ID
			res.Users++
			log.Info().Str("email", email).Str("role", string(su.Role)).Msg("seeded user")
		}

		for _, sc := range d.Checklists {
			if _, err := repo.GetTemplate(ctx, tx, sc.ID); err == nil {
				continue
			} else if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			isDefault := sc.Default
			if isDefault {
				n, err := repo.CountDefaultTemplates(ctx, tx)
				if err != nil {
					return err
				}
				isDefault = n == 0
			}
			t := &domain.ChecklistTemplate{
				ID:          sc.ID,
				Title:       sc.Title,
				Description: optional(sc.Description),
				IsActive:    true,
				IsDefault:   isDefault,
				CreatedByID: ids[strings.ToLower(sc.CreatedBy)],
			}
			for i, it := range sc.Items {
				t.Items = append(t.Items, domain.ChecklistItem{
					ID:             uuid.NewString(),
					TemplateID:     sc.ID,
					Title:          it.Title,
					Description:    optional(it.Description),
					OrderIndex:     i,
					EvaluationType: it.Evaluation,
				})
			}
			if err := repo.CreateTemplate(ctx, tx, t); err != nil {
				return fmt.Errorf("seed: checklist %s: %w", sc.ID, err)
			}
			res.Checklists++
			log.Info().Str("template_id", sc.ID).Int("items", len(t.Items)).Bool("default", isDefault).Msg("seeded checklist")
		}

		for _, sc := range d.Calls {
			// A failed insert aborts a postgres transaction, so look first.
			if _, err := repo.GetCall(ctx, tx, sc.ID); err == nil {
				continue
			} else if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			payload, err := json.Marshal(sc.Payload)
			if err != nil {
				return fmt.Errorf("seed: call %s payload: %w", sc.ID, err)
			}
			c := &domain.CallRecord{
				ID:           sc.ID,
				DealID:       sc.DealID,
				CreatedAt:    sc.CreatedAt.UTC(),
				EmployeeName: sc.Employee,
				ManagerName:  sc.Manager,
				Payload:      datatypes.JSON(payload),
			}
			if err := repo.CreateCall(ctx, tx, c); err != nil {
				return fmt.Errorf("seed: call %s: %w", sc.ID, err)
			}
			res.Calls++
		}
		return nil
	})
	return res, err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
