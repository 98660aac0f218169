package repository

import (
	"github.com/vkozii/authgate/internal/domain"

	"gorm.io/gorm"
)

// LoginAttemptRepository is append-only. There is deliberately no update or
// delete surface.
type LoginAttemptRepository interface {
	Append(attempt *domain.LoginAttempt) error
	ListRecent(limit int) ([]domain.LoginAttempt, error)
	ListByEmail(email string, limit int) ([]domain.LoginAttempt, error)
}

type GormLoginAttemptRepository struct{ db *gorm.DB }

func NewLoginAttemptRepository(db *gorm.DB) LoginAttemptRepository {
	return &GormLoginAttemptRepository{db: db}
}

func (r *GormLoginAttemptRepository) Append(attempt *domain.LoginAttempt) error {
	return r.db.Create(attempt).Error
}

func (r *GormLoginAttemptRepository) ListRecent(limit int) ([]domain.LoginAttempt, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var attempts []domain.LoginAttempt
	err := r.db.Order("id DESC").Limit(limit).Find(&attempts).Error
	return attempts, err
}

func (r *GormLoginAttemptRepository) ListByEmail(email string, limit int) ([]domain.LoginAttempt, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var attempts []domain.LoginAttempt
	err := r.db.Where("email = ?", email).Order("id DESC").Limit(limit).Find(&attempts).Error
	return attempts, err
}
