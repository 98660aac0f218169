package repository

import (
	"errors"
	"time"

	"github.com/vkozii/authgate/internal/domain"

	"gorm.io/gorm"
)

var ErrEphemeralTokenNotFound = errors.New("ephemeral token not found")

type EphemeralTokenRepository interface {
	Create(token *domain.EphemeralToken) error
	// FindByHashPurpose returns the record regardless of used/expired state so
	// the registry can report AlreadyUsed and Expired distinctly.
	FindByHashPurpose(hash string, purpose domain.TokenPurpose) (*domain.EphemeralToken, error)
	// Consume flips used_at exactly once. Concurrent callers observe one
	// winner; the rest get ErrEphemeralTokenNotFound.
	Consume(tokenID uint, now time.Time) error
	InvalidateActiveByAccountPurpose(accountID uint, purpose domain.TokenPurpose, now time.Time) error
	DeleteByID(tokenID uint) error
	DeleteExpired(now time.Time) (int64, error)
}

type GormEphemeralTokenRepository struct{ db *gorm.DB }

func NewEphemeralTokenRepository(db *gorm.DB) EphemeralTokenRepository {
	return &GormEphemeralTokenRepository{db: db}
}

func (r *GormEphemeralTokenRepository) Create(token *domain.EphemeralToken) error {
	return r.db.Create(token).Error
}

func (r *GormEphemeralTokenRepository) FindByHashPurpose(hash string, purpose domain.TokenPurpose) (*domain.EphemeralToken, error) {
	var t domain.EphemeralToken
	err := r.db.Where("token_hash = ? AND purpose = ?", hash, purpose).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEphemeralTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *GormEphemeralTokenRepository) Consume(tokenID uint, now time.Time) error {
	res := r.db.Model(&domain.EphemeralToken{}).
		Where("id = ? AND used_at IS NULL", tokenID).
		Updates(map[string]any{"used_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEphemeralTokenNotFound
	}
	return nil
}

func (r *GormEphemeralTokenRepository) InvalidateActiveByAccountPurpose(accountID uint, purpose domain.TokenPurpose, now time.Time) error {
	return r.db.Model(&domain.EphemeralToken{}).
		Where("account_id = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?", accountID, purpose, now).
		Updates(map[string]any{"used_at": now, "updated_at": now}).Error
}

func (r *GormEphemeralTokenRepository) DeleteByID(tokenID uint) error {
	return r.db.Delete(&domain.EphemeralToken{}, tokenID).Error
}

func (r *GormEphemeralTokenRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", now).Delete(&domain.EphemeralToken{})
	return res.RowsAffected, res.Error
}
