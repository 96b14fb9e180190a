package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/observability"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/repo"
)

// TemplateInUseError carries the number of reviews blocking a deletion.
// It matches ErrTemplateInUse.
type TemplateInUseError struct {
	Reviews int64
}

func (e *TemplateInUseError) Error() string {
	return fmt.Sprintf("template is referenced by %d reviews", e.Reviews)
}

func (e *TemplateInUseError) Is(target error) bool { return target == ErrTemplateInUse }

// TemplateItemInput is one item of a template body.
type TemplateItemInput struct {
	Text           string  `json:"text"           validate:"required,min=1,max=200"`
	Description    *string `json:"description"    validate:"omitempty,max=500"`
	OrderIndex     int     `json:"orderIndex"     validate:"min=0"`
	EvaluationType string  `json:"evaluationType" validate:"omitempty,oneof=SCALE_1_10 YES_NO"`
}

// TemplateInput is the body of template create and update. Items are stored
// in the order given; posted orderIndex values are not trusted.
type TemplateInput struct {
	Name        string              `json:"name"        validate:"required,min=1,max=200"`
	Description *string             `json:"description"`
	IsActive    *bool               `json:"isActive"`
	Items       []TemplateItemInput `json:"items"       validate:"required,min=1,dive"`
}

// TemplateService manages checklist templates.
type TemplateService struct {
	DB *gorm.DB
}

func (in TemplateInput) items(templateID string) []domain.ChecklistItem {
	out := make([]domain.ChecklistItem, 0, len(in.Items))
	for i, it := range in.Items {
		et := domain.EvaluationType(it.EvaluationType)
		if et == "" {
			et = domain.EvalScale1To10
		}
		out = append(out, domain.ChecklistItem{
			ID:             uuid.NewString(),
			TemplateID:     templateID,
			Title:          strings.TrimSpace(it.Text),
			Description:    nonEmpty(it.Description),
			OrderIndex:     i,
			EvaluationType: et,
		})
	}
	return out
}

func (in TemplateInput) active() bool {
	return in.IsActive == nil || *in.IsActive
}

// List returns templates with items, creator and review count. activeOnly
// hides disabled templates.
func (s *TemplateService) List(ctx context.Context, p *domain.Principal, activeOnly bool) ([]domain.ChecklistTemplate, error) {
	if err := rbac.Check(p, rbac.ManageTemplates); err != nil {
		return nil, err
	}
	return repo.ListTemplates(ctx, s.DB, activeOnly)
}

// Get returns one template.
func (s *TemplateService) Get(ctx context.Context, p *domain.Principal, id string) (*domain.ChecklistTemplate, error) {
	if err := rbac.Check(p, rbac.ManageTemplates); err != nil {
		return nil, err
	}
	t, err := repo.GetTemplate(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	return t, err
}

// Create stores a new template owned by p.
func (s *TemplateService) Create(ctx context.Context, p *domain.Principal, in TemplateInput) (*domain.ChecklistTemplate, error) {
	ctx, span := observability.StartSpan(ctx, "TemplateService.Create")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.ManageTemplates); err != nil {
		return nil, err
	}
	if err = validateStruct(in); err != nil {
		return nil, err
	}

	t := &domain.ChecklistTemplate{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Name),
		Description: nonEmpty(in.Description),
		IsActive:    in.active(),
		CreatedByID: p.UserID,
	}
	t.Items = in.items(t.ID)
	if err = repo.CreateTemplate(ctx, s.DB, t); err != nil {
		return nil, err
	}
	return repo.GetTemplate(ctx, s.DB, t.ID)
}

// Update overwrites the fields of template id and replaces its items
// atomically.
func (s *TemplateService) Update(ctx context.Context, p *domain.Principal, id string, in TemplateInput) (*domain.ChecklistTemplate, error) {
	ctx, span := observability.StartSpan(ctx, "TemplateService.Update", attribute.String("template.id", id))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.ManageTemplates); err != nil {
		return nil, err
	}
	if err = validateStruct(in); err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{
			"title":       strings.TrimSpace(in.Name),
			"description": nonEmpty(in.Description),
			"is_active":   in.active(),
		}
		if err := repo.UpdateTemplateFields(ctx, tx, id, fields); err != nil {
			return err
		}
		return repo.ReplaceTemplateItems(ctx, tx, id, in.items(id))
	})
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrTemplateNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return repo.GetTemplate(ctx, s.DB, id)
}

// Delete removes template id and its items. Templates referenced by any
// review are kept and a *TemplateInUseError is returned.
func (s *TemplateService) Delete(ctx context.Context, p *domain.Principal, id string) error {
	ctx, span := observability.StartSpan(ctx, "TemplateService.Delete", attribute.String("template.id", id))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.ManageTemplates); err != nil {
		return err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetTemplate(ctx, tx, id); err != nil {
			return err
		}
		n, err := repo.CountTemplateReviews(ctx, tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &TemplateInUseError{Reviews: n}
		}
		return repo.DeleteTemplate(ctx, tx, id)
	})
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrTemplateNotFound
	}
	return err
}

// Toggle flips the active flag of template id.
func (s *TemplateService) Toggle(ctx context.Context, p *domain.Principal, id string) (*domain.ChecklistTemplate, error) {
	if err := rbac.Check(p, rbac.ManageTemplates); err != nil {
		return nil, err
	}
	var out *domain.ChecklistTemplate
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := repo.GetTemplate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := repo.UpdateTemplateFields(ctx, tx, id, map[string]any{"is_active": !t.IsActive}); err != nil {
			return err
		}
		out, err = repo.GetTemplate(ctx, tx, id)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	return out, err
}

// SetDefault makes template id the only default and activates it.
func (s *TemplateService) SetDefault(ctx context.Context, p *domain.Principal, id string) (*domain.ChecklistTemplate, error) {
	ctx, span := observability.StartSpan(ctx, "TemplateService.SetDefault", attribute.String("template.id", id))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.ManageTemplates); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		err = invalid("checklistId", "Не указан ID чек-листа")
		return nil, err
	}

	var out *domain.ChecklistTemplate
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetTemplate(ctx, tx, id); err != nil {
			return err
		}
		if err := repo.ClearDefaultTemplates(ctx, tx); err != nil {
			return err
		}
		if err := repo.UpdateTemplateFields(ctx, tx, id, map[string]any{"is_default": true, "is_active": true}); err != nil {
			return err
		}
		var err error
		out, err = repo.GetTemplate(ctx, tx, id)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrTemplateNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
