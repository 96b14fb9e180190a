// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for CallReview.
package repo

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/callqa-backend/internal/domain"
)

// CreateReview inserts r without touching associations.
func CreateReview(ctx context.Context, db *gorm.DB, r *domain.CallReview) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(r).Error
}

// GetReview fetches a review with its template (ordered items) and
// requester, or ErrNotFound.
func GetReview(ctx context.Context, db *gorm.DB, id string) (*domain.CallReview, error) {
	var r domain.CallReview
	err := db.WithContext(ctx).
		Preload("Template.Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC") }).
		Preload("RequestedBy").
		First(&r, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestOpenReview returns the most recent review of callID that can still
// take analysis results (PENDING, SENT or SUCCESS), or ErrNotFound.
func LatestOpenReview(ctx context.Context, db *gorm.DB, callID string) (*domain.CallReview, error) {
	var r domain.CallReview
	err := db.WithContext(ctx).
		Where("call_id = ? AND status IN ?", callID, []domain.ReviewStatus{domain.ReviewPending, domain.ReviewSent, domain.ReviewSuccess}).
		Order("created_at DESC").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ReviewUpdate holds the columns written when a review changes state.
// Nil fields are left untouched.
type ReviewUpdate struct {
	Status          domain.ReviewStatus
	N8nResponse     datatypes.JSON
	AnalysisResults datatypes.JSON
	CompletedAt     *time.Time
}

// UpdateReview applies u to review id.
func UpdateReview(ctx context.Context, db *gorm.DB, id string, u ReviewUpdate) error {
	fields := map[string]any{"status": u.Status}
	if u.N8nResponse != nil {
		fields["n8n_response"] = u.N8nResponse
	}
	if u.AnalysisResults != nil {
		fields["analysis_results"] = u.AnalysisResults
	}
	if u.CompletedAt != nil {
		fields["completed_at"] = *u.CompletedAt
	}
	res := db.WithContext(ctx).Model(&domain.CallReview{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReview removes a review by id.
func DeleteReview(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.CallReview{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountReviewsByCall returns the number of reviews of callID.
func CountReviewsByCall(ctx context.Context, db *gorm.DB, callID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.CallReview{}).Where("call_id = ?", callID).Count(&n).Error
	return n, err
}

// CountReviewsByStatus returns review counts grouped by status.
func CountReviewsByStatus(ctx context.Context, db *gorm.DB) (map[domain.ReviewStatus]int64, error) {
	var rows []struct {
		Status domain.ReviewStatus
		N      int64
	}
	err := db.WithContext(ctx).Model(&domain.CallReview{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ReviewStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
