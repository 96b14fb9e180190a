package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/callqa-backend/internal/domain"
)

func TestListTemplates_ItemsCountsAndActiveFilter(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	seedUser(t, db, "u1", "a@x", "Admin", domain.RoleAdministrator)
	seedTemplate(t, db, "t-old", "u1", true, false, base, "a", "b", "c")
	seedTemplate(t, db, "t-off", "u1", false, false, base.Add(time.Hour), "x")
	seedCall(t, db, "c1", "Ann", base)
	seedReview(t, db, "r1", "c1", "t-old", domain.ReviewSuccess, base)
	seedReview(t, db, "r2", "c1", "t-old", domain.ReviewFailed, base)

	all, err := ListTemplates(ctx, db, false)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(all) != 2 || all[0].ID != "t-off" {
		t.Fatalf("unexpected order: %+v", all)
	}
	old := all[1]
	if old.ReviewCount != 2 || len(old.Items) != 3 || old.Items[0].Title != "a" || old.Items[2].OrderIndex != 2 {
		t.Fatalf("unexpected template: %+v", old)
	}
	if old.CreatedBy == nil || old.CreatedBy.Name != "Admin" {
		t.Fatalf("creator not loaded: %+v", old.CreatedBy)
	}

	active, err := ListTemplates(ctx, db, true)
	if err != nil || len(active) != 1 || active[0].ID != "t-old" {
		t.Fatalf("active = %+v, %v", active, err)
	}
}

func TestFindAutoTemplate_Preference(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedUser(t, db, "u1", "a@x", "Admin", domain.RoleAdministrator)

	if _, err := FindAutoTemplate(ctx, db); err != ErrNotFound {
		t.Fatalf("empty: expected ErrNotFound, got %v", err)
	}

	seedTemplate(t, db, "t-inactive-default", "u1", false, true, base, "a")
	seedTemplate(t, db, "t-second", "u1", true, false, base.Add(2*time.Hour), "a")
	seedTemplate(t, db, "t-first", "u1", true, false, base.Add(time.Hour), "a")

	got, err := FindAutoTemplate(ctx, db)
	if err != nil || got.ID != "t-first" {
		t.Fatalf("oldest active expected, got %+v %v", got, err)
	}
	if _, err := FindDefaultTemplate(ctx, db); err != ErrNotFound {
		t.Fatalf("inactive default must not count, got %v", err)
	}

	seedTemplate(t, db, "t-default", "u1", true, true, base.Add(3*time.Hour), "a", "b")
	got, err = FindAutoTemplate(ctx, db)
	if err != nil || got.ID != "t-default" || len(got.Items) != 2 {
		t.Fatalf("default expected, got %+v %v", got, err)
	}
	got, err = FindDefaultTemplate(ctx, db)
	if err != nil || got.ID != "t-default" {
		t.Fatalf("FindDefaultTemplate = %+v %v", got, err)
	}
}

func TestReplaceItemsAndDelete(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedUser(t, db, "u1", "a@x", "Admin", domain.RoleAdministrator)
	seedTemplate(t, db, "t1", "u1", true, true, now, "a", "b")

	items := []domain.ChecklistItem{
		{ID: "n0", TemplateID: "t1", Title: "z", OrderIndex: 0, EvaluationType: domain.EvalScale1To10},
	}
	if err := ReplaceTemplateItems(ctx, db, "t1", items); err != nil {
		t.Fatalf("ReplaceTemplateItems: %v", err)
	}
	got, err := GetTemplate(ctx, db, "t1")
	if err != nil || len(got.Items) != 1 || got.Items[0].Title != "z" {
		t.Fatalf("after replace: %+v %v", got, err)
	}

	if err := UpdateTemplateFields(ctx, db, "t1", map[string]any{"title": "renamed"}); err != nil {
		t.Fatalf("UpdateTemplateFields: %v", err)
	}
	if err := UpdateTemplateFields(ctx, db, "nope", map[string]any{"title": "x"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := ClearDefaultTemplates(ctx, db); err != nil {
		t.Fatalf("ClearDefaultTemplates: %v", err)
	}
	if n, _ := CountDefaultTemplates(ctx, db); n != 0 {
		t.Fatalf("defaults left = %d", n)
	}

	if err := DeleteTemplate(ctx, db, "t1"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	var items2 int64
	db.Model(&domain.ChecklistItem{}).Where("template_id = ?", "t1").Count(&items2)
	if items2 != 0 {
		t.Fatalf("items left = %d", items2)
	}
	if err := DeleteTemplate(ctx, db, "t1"); err != ErrNotFound {
		t.Fatalf("second delete: %v", err)
	}
}
