package domain

import "time"

// Idempotency records the outcome of a create request sent with an
// Idempotency-Key header, keyed by (scope, key). A retry carrying the same
// key replays the recorded translation key instead of failing with a
// conflict.
type Idempotency struct {
	ID               string    `gorm:"type:varchar(36);primaryKey"`
	Scope            string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_idem_scope_key,priority:1"`
	Key              string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_idem_scope_key,priority:2"`
	TranslationKeyID uint      `gorm:"not null"`
	Status           int       `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt        time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
