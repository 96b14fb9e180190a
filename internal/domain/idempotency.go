package domain

import "time"

// Idempotency records the review produced by a manual dispatch, keyed by
// (user_id, call_id, key). A retried request with the same Idempotency-Key
// gets the recorded review back instead of a second dispatch.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_call_key,priority:1"`
	CallID    string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_user_call_key,priority:2"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_user_call_key,priority:3"`
	ReviewID  string    `gorm:"type:char(36);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
