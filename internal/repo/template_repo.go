// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for checklist
// templates and their items.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/callqa-backend/internal/domain"
)

func preloadItems(q *gorm.DB) *gorm.DB {
	return q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC") })
}

// ListTemplates returns templates newest first with ordered items and
// creator. When activeOnly is set inactive templates are skipped.
func ListTemplates(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.ChecklistTemplate, error) {
	q := preloadItems(db.WithContext(ctx)).Preload("CreatedBy")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []domain.ChecklistTemplate
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	var counts []struct {
		TemplateID string
		N          int64
	}
	err := db.WithContext(ctx).Model(&domain.CallReview{}).
		Select("template_id, COUNT(*) AS n").
		Where("template_id IN ?", ids).
		Group("template_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	byID := make(map[string]int64, len(counts))
	for _, c := range counts {
		byID[c.TemplateID] = c.N
	}
	for i := range out {
		out[i].ReviewCount = byID[out[i].ID]
	}
	return out, nil
}

// GetTemplate fetches a template with ordered items and creator, or ErrNotFound.
func GetTemplate(ctx context.Context, db *gorm.DB, id string) (*domain.ChecklistTemplate, error) {
	var t domain.ChecklistTemplate
	if err := preloadItems(db.WithContext(ctx)).Preload("CreatedBy").First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	n, err := CountTemplateReviews(ctx, db, id)
	if err != nil {
		return nil, err
	}
	t.ReviewCount = n
	return &t, nil
}

// FindAutoTemplate returns the active default template, else the oldest
// active one, else ErrNotFound.
func FindAutoTemplate(ctx context.Context, db *gorm.DB) (*domain.ChecklistTemplate, error) {
	var t domain.ChecklistTemplate
	err := preloadItems(db.WithContext(ctx)).
		Where("is_active = ?", true).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "is_default"}, Desc: true}).
		Order("created_at ASC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindDefaultTemplate returns the template that is both default and active,
// or ErrNotFound.
func FindDefaultTemplate(ctx context.Context, db *gorm.DB) (*domain.ChecklistTemplate, error) {
	var t domain.ChecklistTemplate
	err := preloadItems(db.WithContext(ctx)).
		Where("is_default = ? AND is_active = ?", true, true).
		Order("updated_at DESC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTemplate inserts t together with its items.
func CreateTemplate(ctx context.Context, db *gorm.DB, t *domain.ChecklistTemplate) error {
	return db.WithContext(ctx).Omit("CreatedBy").Create(t).Error
}

// UpdateTemplateFields writes the scalar template columns.
func UpdateTemplateFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.ChecklistTemplate{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceTemplateItems deletes all items of templateID and inserts items.
// Run it inside a transaction.
func ReplaceTemplateItems(ctx context.Context, db *gorm.DB, templateID string, items []domain.ChecklistItem) error {
	if err := db.WithContext(ctx).Where("template_id = ?", templateID).Delete(&domain.ChecklistItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

// DeleteTemplate removes a template and its items. Run it inside a transaction.
func DeleteTemplate(ctx context.Context, db *gorm.DB, id string) error {
	if err := db.WithContext(ctx).Where("template_id = ?", id).Delete(&domain.ChecklistItem{}).Error; err != nil {
		return err
	}
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.ChecklistTemplate{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearDefaultTemplates unsets the default flag on every template.
func ClearDefaultTemplates(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Model(&domain.ChecklistTemplate{}).
		Where("is_default = ?", true).
		Update("is_default", false).Error
}

// CountTemplateReviews returns the number of reviews referencing templateID.
func CountTemplateReviews(ctx context.Context, db *gorm.DB, templateID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.CallReview{}).Where("template_id = ?", templateID).Count(&n).Error
	return n, err
}

// CountDefaultTemplates returns how many templates are flagged default.
func CountDefaultTemplates(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.ChecklistTemplate{}).Where("is_default = ?", true).Count(&n).Error
	return n, err
}
