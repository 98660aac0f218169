package database

import (
	"github.com/vkozii/authgate/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Account{},
		&domain.EphemeralToken{},
		&domain.LoginAttempt{},
	)
}
