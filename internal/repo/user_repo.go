// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for User.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/domain"
)

// CreateUser inserts u and returns ErrDuplicate when the email is taken.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUser fetches a user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by normalized email, or ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns every user, newest first.
func ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// EmailTaken reports whether another user than exceptID owns email.
func EmailTaken(ctx context.Context, db *gorm.DB, email, exceptID string) (bool, error) {
	var n int64
	q := db.WithContext(ctx).Model(&domain.User{}).Where("email = ?", email)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateUser writes fields on user id. It returns ErrNotFound when no row
// matches and ErrDuplicate on an email clash.
func UpdateUser(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UserDependents counts the templates created and reviews requested by id.
func UserDependents(ctx context.Context, db *gorm.DB, id string) (templates, reviews int64, err error) {
	if err = db.WithContext(ctx).Model(&domain.ChecklistTemplate{}).Where("created_by_id = ?", id).Count(&templates).Error; err != nil {
		return 0, 0, err
	}
	if err = db.WithContext(ctx).Model(&domain.CallReview{}).Where("requested_by_id = ?", id).Count(&reviews).Error; err != nil {
		return 0, 0, err
	}
	return templates, reviews, nil
}

// DeleteUser removes user id, or returns ErrNotFound.
func DeleteUser(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
