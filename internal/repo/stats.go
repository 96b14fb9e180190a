// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/domain"
)

// CallsStats returns aggregate metadata for the calls visible to a caller:
// the total number of rows and the maximum UpdatedAt timestamp among those
// rows. employeeName restricts the scope; nil means every call.
//
// Review changes are folded in as well, so a listing ETag changes when a
// review of any visible call is created, finished or removed.
//
// Return values:
//   - count:        visible calls plus their reviews
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func CallsStats(ctx context.Context, db *gorm.DB, employeeName *string) (count int64, maxUpdatedAt *time.Time, err error) {
	calls := db.WithContext(ctx).Model(&domain.CallRecord{})
	if employeeName != nil {
		calls = calls.Where("employee_name = ?", *employeeName)
	}

	// Count
	if err = calls.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = calls.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	latest := row.UpdatedAt

	reviews := db.WithContext(ctx).Model(&domain.CallReview{})
	if employeeName != nil {
		reviews = reviews.Where("call_id IN (?)",
			db.Model(&domain.CallRecord{}).Select("id").Where("employee_name = ?", *employeeName))
	}
	var reviewCount int64
	if err = reviews.Count(&reviewCount).Error; err != nil {
		return 0, nil, err
	}
	if reviewCount > 0 {
		var rrow struct {
			UpdatedAt time.Time
		}
		if err = reviews.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&rrow).Error; err != nil {
			return 0, nil, err
		}
		if rrow.UpdatedAt.After(latest) {
			latest = rrow.UpdatedAt
		}
	}
	return count + reviewCount, &latest, nil
}
