package domain

import "time"

// LoginAttempt is an append-only audit record. Rows are never updated.
type LoginAttempt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"size:255;not null;index:idx_login_attempts_email" json:"email"`
	Success   bool      `gorm:"not null" json:"success"`
	CreatedAt time.Time `json:"created_at"`
}
