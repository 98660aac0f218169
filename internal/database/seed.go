package database

import (
	"fmt"
	"strings"

	"github.com/vkozii/authgate/internal/domain"

	"gorm.io/gorm"
)

// SeedReport summarizes what the startup seed changed.
type SeedReport struct {
	PromotedAdmin bool `json:"promoted_admin"`
	Noop          bool `json:"noop"`
}

// Seed reconciles startup state. Today that is one rule: if the configured
// bootstrap admin already has an account, make sure it carries the admin
// role. Registration handles the case where the account does not exist yet.
func Seed(db *gorm.DB, bootstrapAdminEmail string) (*SeedReport, error) {
	report := &SeedReport{}

	email := strings.TrimSpace(strings.ToLower(bootstrapAdminEmail))
	if email == "" {
		report.Noop = true
		return report, nil
	}

	var account domain.Account
	err := db.Where("lower(email) = ?", email).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			report.Noop = true
			return report, nil
		}
		return nil, fmt.Errorf("look up bootstrap admin: %w", err)
	}

	if account.Role == domain.RoleAdmin {
		report.Noop = true
		return report, nil
	}
	if err := db.Model(&account).Update("role", domain.RoleAdmin).Error; err != nil {
		return nil, fmt.Errorf("promote bootstrap admin: %w", err)
	}
	report.PromotedAdmin = true
	return report, nil
}

// ActivateAccount flips the account with the given email to active without
// going through the activation token flow. Operator escape hatch for local
// environments where no mail delivery exists.
func ActivateAccount(db *gorm.DB, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return fmt.Errorf("email is required")
	}
	res := db.Model(&domain.Account{}).Where("lower(email) = ?", email).Update("is_active", true)
	if res.Error != nil {
		return fmt.Errorf("activate account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no account found for %s", email)
	}
	return nil
}
