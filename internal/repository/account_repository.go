package repository

import (
	"errors"
	"time"

	"github.com/vkozii/authgate/internal/domain"

	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository interface {
	Create(account *domain.Account) error
	FindByID(id uint) (*domain.Account, error)
	FindByEmail(email string) (*domain.Account, error)
	FindByFederatedID(federatedID string) (*domain.Account, error)
	Update(id uint, fields map[string]any) error
	ListPaged(req PageRequest) (*PageResult[domain.Account], error)
	Delete(id uint) error

	// RegisterFailedLogin bumps the failure counter with an in-database
	// increment (never read-modify-write) and assigns the lock when the new
	// count reaches threshold. Returns the post-increment count and whether
	// the lock was set.
	RegisterFailedLogin(id uint, threshold int, lockedUntil time.Time) (int, bool, error)
	ResetFailedLogins(id uint) error

	SetTwoFactorChallenge(id uint, code string, expiresAt time.Time) error
	ClearTwoFactorChallenge(id uint) error
	SetTwoFactorEnabled(id uint, enabled bool) error

	UpdatePassword(id uint, newHash string) error
	UpdateEmail(id uint, newEmail string) error
}

type GormAccountRepository struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) AccountRepository { return &GormAccountRepository{db: db} }

func (r *GormAccountRepository) Create(account *domain.Account) error {
	return r.db.Create(account).Error
}

func (r *GormAccountRepository) FindByID(id uint) (*domain.Account, error) {
	var a domain.Account
	if err := r.db.First(&a, id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &a, nil
}

func (r *GormAccountRepository) FindByEmail(email string) (*domain.Account, error) {
	var a domain.Account
	if err := r.db.Where("email = ?", email).First(&a).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &a, nil
}

func (r *GormAccountRepository) FindByFederatedID(federatedID string) (*domain.Account, error) {
	var a domain.Account
	if err := r.db.Where("federated_id = ?", federatedID).First(&a).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &a, nil
}

func (r *GormAccountRepository) Update(id uint, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := r.db.Model(&domain.Account{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *GormAccountRepository) ListPaged(req PageRequest) (*PageResult[domain.Account], error) {
	req = normalizePageRequest(req)
	var total int64
	if err := r.db.Model(&domain.Account{}).Count(&total).Error; err != nil {
		return nil, err
	}
	var accounts []domain.Account
	err := r.db.Order("id DESC").
		Offset(req.offset()).
		Limit(req.PageSize).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return &PageResult[domain.Account]{
		Items:      accounts,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, req.PageSize),
	}, nil
}

func (r *GormAccountRepository) Delete(id uint) error {
	res := r.db.Delete(&domain.Account{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *GormAccountRepository) RegisterFailedLogin(id uint, threshold int, lockedUntil time.Time) (count int, locked bool, err error) {
	now := time.Now().UTC()
	err = r.db.Transaction(func(tx *gorm.DB) error {
		// The increment happens inside the database so two concurrent
		// failures never collapse into one.
		res := tx.Model(&domain.Account{}).Where("id = ?", id).
			Updates(map[string]any{
				"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
				"updated_at":            now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		var a domain.Account
		if err := tx.First(&a, id).Error; err != nil {
			return translateNotFound(err)
		}
		count = a.FailedLoginAttempts
		if count >= threshold {
			locked = true
			return tx.Model(&domain.Account{}).Where("id = ?", id).
				Updates(map[string]any{"locked_until": lockedUntil, "updated_at": now}).Error
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return count, locked, nil
}

func (r *GormAccountRepository) ResetFailedLogins(id uint) error {
	return r.Update(id, map[string]any{"failed_login_attempts": 0, "locked_until": nil})
}

func (r *GormAccountRepository) SetTwoFactorChallenge(id uint, code string, expiresAt time.Time) error {
	return r.Update(id, map[string]any{"two_factor_code": code, "two_factor_expires_at": expiresAt})
}

func (r *GormAccountRepository) ClearTwoFactorChallenge(id uint) error {
	return r.Update(id, map[string]any{"two_factor_code": "", "two_factor_expires_at": nil})
}

func (r *GormAccountRepository) SetTwoFactorEnabled(id uint, enabled bool) error {
	fields := map[string]any{"two_factor_enabled": enabled}
	if !enabled {
		fields["two_factor_code"] = ""
		fields["two_factor_expires_at"] = nil
	}
	return r.Update(id, fields)
}

func (r *GormAccountRepository) UpdatePassword(id uint, newHash string) error {
	return r.Update(id, map[string]any{"password_hash": newHash})
}

func (r *GormAccountRepository) UpdateEmail(id uint, newEmail string) error {
	return r.Update(id, map[string]any{"email": newEmail})
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAccountNotFound
	}
	return err
}
