package domain

import "time"

type TokenPurpose string

const (
	TokenPurposeActivation    TokenPurpose = "activation"
	TokenPurposePasswordReset TokenPurpose = "password_reset"
	TokenPurposeEmailChange   TokenPurpose = "email_change"
)

// EphemeralToken is a single-use, time-bounded token binding a subject and a
// purpose. Only the sha256 of the raw token is stored; UsedAt moves nil→set
// exactly once.
type EphemeralToken struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	TokenHash string       `gorm:"uniqueIndex;size:64;not null" json:"-"`
	Purpose   TokenPurpose `gorm:"size:32;not null;index:idx_ephemeral_tokens_purpose" json:"purpose"`
	AccountID uint         `gorm:"not null;index" json:"account_id"`
	Payload   string       `gorm:"size:255" json:"-"`
	ExpiresAt time.Time    `gorm:"not null" json:"expires_at"`
	UsedAt    *time.Time   `json:"used_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
