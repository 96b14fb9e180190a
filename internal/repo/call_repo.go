// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the CallRecord
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a call is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Inserting an existing id returns ErrDuplicate.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/callqa-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// Sortable call columns, keyed by their API names.
var callSortColumns = map[string]string{
	"createdAt":    "created_at",
	"dealId":       "deal_id",
	"employeeName": "employee_name",
}

// CallFilter narrows call listings.
type CallFilter struct {
	// EmployeeName restricts rows to one employee (row-level visibility).
	EmployeeName *string
	// Search matches id, deal id, employee or manager name by substring.
	Search string
	// From is inclusive, To is exclusive.
	From *time.Time
	To   *time.Time

	SortBy   string // createdAt|dealId|employeeName
	SortDesc bool
	Offset   int
	Limit    int
}

func (f CallFilter) apply(q *gorm.DB) *gorm.DB {
	if f.EmployeeName != nil {
		q = q.Where("employee_name = ?", *f.EmployeeName)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("(id LIKE ? OR deal_id LIKE ? OR employee_name LIKE ? OR manager_name LIKE ?)", like, like, like, like)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}
	return q
}

// preloadReviews loads reviews newest first with their template and requester.
func preloadReviews(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Reviews", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Preload("Reviews.Template").
		Preload("Reviews.RequestedBy")
}

// ListCalls returns one page of calls matching f and the total match count.
func ListCalls(ctx context.Context, db *gorm.DB, f CallFilter) ([]domain.CallRecord, int64, error) {
	var total int64
	if err := f.apply(db.WithContext(ctx).Model(&domain.CallRecord{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	col, ok := callSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	var out []domain.CallRecord
	err := preloadReviews(f.apply(db.WithContext(ctx))).
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: f.SortDesc}).
		Order("id").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetCall fetches a call with its reviews, or ErrNotFound.
func GetCall(ctx context.Context, db *gorm.DB, id string) (*domain.CallRecord, error) {
	var c domain.CallRecord
	if err := preloadReviews(db.WithContext(ctx)).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCall inserts c and returns ErrDuplicate when the id is taken.
func CreateCall(ctx context.Context, db *gorm.DB, c *domain.CallRecord) error {
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpsertCall inserts c or, when the id exists, overwrites its mutable
// columns. created_at is refreshed only when updateCreatedAt is true.
func UpsertCall(ctx context.Context, db *gorm.DB, c *domain.CallRecord, updateCreatedAt bool) error {
	cols := []string{"deal_id", "employee_name", "manager_name", "initiated_by", "call_text", "payload", "updated_at"}
	if updateCreatedAt {
		cols = append(cols, "created_at")
	}
	return db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(c).Error
}

// UpdateCallFields writes fields on call id, or returns ErrNotFound.
func UpdateCallFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.CallRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindExistingCallIDs returns the subset of ids that exist.
func FindExistingCallIDs(ctx context.Context, db *gorm.DB, ids []string) ([]string, error) {
	var out []string
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Model(&domain.CallRecord{}).Where("id IN ?", ids).Pluck("id", &out).Error
	return out, err
}

// DeleteCalls removes calls by id together with their reviews and returns
// the number of deleted calls and reviews. Run it inside a transaction.
func DeleteCalls(ctx context.Context, db *gorm.DB, ids []string) (calls, reviews int64, err error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}
	res := db.WithContext(ctx).Where("call_id IN ?", ids).Delete(&domain.CallReview{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	reviews = res.RowsAffected
	res = db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.CallRecord{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	return res.RowsAffected, reviews, nil
}

// DeleteAllCalls removes every call and review. Run it inside a transaction.
func DeleteAllCalls(ctx context.Context, db *gorm.DB) (calls, reviews int64, err error) {
	res := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.CallReview{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	reviews = res.RowsAffected
	res = db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.CallRecord{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	return res.RowsAffected, reviews, nil
}

// CountCalls returns the number of stored calls.
func CountCalls(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.CallRecord{}).Count(&n).Error
	return n, err
}
