package domain

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func ParseRole(v string) (Role, error) {
	switch Role(v) {
	case RoleUser, RoleAdmin:
		return Role(v), nil
	default:
		return "", fmt.Errorf("unknown role %q", v)
	}
}

// Account is the identity record. PasswordHash is empty for accounts that
// only authenticate through a federated identity provider.
type Account struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Email               string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash        string     `gorm:"size:1024" json:"-"`
	IsActive            bool       `gorm:"not null;default:false;index:idx_accounts_active" json:"is_active"`
	Role                Role       `gorm:"size:16;not null;default:user" json:"role"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	TwoFactorEnabled    bool       `gorm:"not null;default:false" json:"two_factor_enabled"`
	TwoFactorCode       string     `gorm:"size:8" json:"-"`
	TwoFactorExpiresAt  *time.Time `json:"-"`
	FederatedID         string     `gorm:"size:255;index" json:"-"`
	DeactivatedAt       *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

func (a *Account) HasPassword() bool { return a.PasswordHash != "" }
