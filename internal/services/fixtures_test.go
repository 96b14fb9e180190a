package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/events"
	"github.com/tbourn/callqa-backend/internal/n8n"
	"github.com/tbourn/callqa-backend/internal/repo"
)

var (
	t0      = time.Date(2025, 9, 16, 8, 13, 0, 0, time.UTC)
	fixedAt = func() time.Time { return t0.Add(time.Hour) }

	admin      = &domain.Principal{UserID: "u-admin", Name: "Админ", Role: domain.RoleAdministrator}
	manager    = &domain.Principal{UserID: "u-mgr", Name: "Менеджер", Role: domain.RoleOCCManager}
	supervisor = &domain.Principal{UserID: "u-sup", Name: "Иван Петров", Role: domain.RoleSupervisor}
)

// newServiceDB returns an in-memory database with the full schema and the
// three fixture users.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	for _, p := range []*domain.Principal{admin, manager, supervisor} {
		u := &domain.User{ID: p.UserID, Email: p.UserID + "@example.com", Name: p.Name, PasswordHash: "x", Role: p.Role}
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	return db
}

func seedCall(t *testing.T, db *gorm.DB, id, employee string, text *string) *domain.CallRecord {
	t.Helper()
	c := &domain.CallRecord{
		ID: id, DealID: "deal-" + id, EmployeeName: employee, ManagerName: "Boss",
		CallText: text, CreatedAt: t0, UpdatedAt: t0,
	}
	if err := db.Omit("Reviews").Create(c).Error; err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return c
}

func seedTemplate(t *testing.T, db *gorm.DB, id string, active, def bool, items ...string) *domain.ChecklistTemplate {
	t.Helper()
	tpl := &domain.ChecklistTemplate{ID: id, Title: "T " + id, IsActive: active, IsDefault: def, CreatedByID: admin.UserID, CreatedAt: t0, UpdatedAt: t0}
	for i, title := range items {
		tpl.Items = append(tpl.Items, domain.ChecklistItem{
			ID: fmt.Sprintf("%s-i%d", id, i), TemplateID: id, Title: title, OrderIndex: i, EvaluationType: domain.EvalYesNo,
		})
	}
	if err := db.Omit("CreatedBy").Create(tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return tpl
}

func seedReview(t *testing.T, db *gorm.DB, id, callID, templateID string, st domain.ReviewStatus, requester *string, at time.Time) *domain.CallReview {
	t.Helper()
	r := &domain.CallReview{ID: id, CallID: callID, TemplateID: templateID, Status: st, RequestedByID: requester, CreatedAt: at, UpdatedAt: at}
	if err := repo.CreateReview(context.Background(), db, r); err != nil {
		t.Fatalf("seed review: %v", err)
	}
	return r
}

func strp(s string) *string { return &s }

// fakeN8N records posted payloads and answers with a fixed status and body.
type fakeN8N struct {
	*httptest.Server

	mu       sync.Mutex
	payloads []n8n.Payload
	agents   []string
	raw      [][]byte
}

func newFakeN8N(t *testing.T, status int, body string) *fakeN8N {
	t.Helper()
	f := &fakeN8N{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var p n8n.Payload
		_ = json.Unmarshal(b, &p)
		f.mu.Lock()
		f.payloads = append(f.payloads, p)
		f.agents = append(f.agents, r.Header.Get("User-Agent"))
		f.raw = append(f.raw, b)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeN8N) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeN8N) last() (n8n.Payload, string, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.payloads) - 1
	return f.payloads[i], f.agents[i], f.raw[i]
}

// recordingPublisher keeps published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
