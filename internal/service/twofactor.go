package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/repository"
	"github.com/vkozii/authgate/internal/security"
)

// TwoFactorChallenge manages the per-account Idle → Challenged → Idle state
// machine. The code fields on the account row are the whole state: clearing
// them returns the account to Idle on success, expiry, and disable alike.
type TwoFactorChallenge struct {
	accounts repository.AccountRepository
	notifier Notifier
	ttl      time.Duration
	newCode  func() (string, error)
	logger   *slog.Logger
}

func NewTwoFactorChallenge(accounts repository.AccountRepository, notifier Notifier, ttl time.Duration, logger *slog.Logger) *TwoFactorChallenge {
	return &TwoFactorChallenge{
		accounts: accounts,
		notifier: notifier,
		ttl:      ttl,
		newCode:  security.NewTwoFactorCode,
		logger:   logger,
	}
}

// Issue stores a fresh code and dispatches it. Issuing does not authenticate:
// the login stays incomplete until Verify succeeds.
func (c *TwoFactorChallenge) Issue(ctx context.Context, account *domain.Account, now time.Time) error {
	code, err := c.newCode()
	if err != nil {
		return err
	}
	if err := c.accounts.SetTwoFactorChallenge(account.ID, code, now.Add(c.ttl)); err != nil {
		return err
	}
	if err := c.notifier.SendTwoFactorCode(ctx, account.Email, code); err != nil {
		c.logger.WarnContext(ctx, "two-factor code delivery failed", "account_id", account.ID, "error", err)
	}
	return nil
}

// Verify compares the submitted code by exact string equality. A missing or
// expired code clears the challenge and reports expiry; a mismatch leaves the
// stored code valid for further attempts until it expires.
func (c *TwoFactorChallenge) Verify(account *domain.Account, submitted string, now time.Time) error {
	if account.TwoFactorCode == "" || account.TwoFactorExpiresAt == nil || now.After(*account.TwoFactorExpiresAt) {
		if err := c.accounts.ClearTwoFactorChallenge(account.ID); err != nil {
			return err
		}
		return ErrTwoFactorCodeExpired
	}
	if account.TwoFactorCode != submitted {
		return ErrTwoFactorCodeInvalid
	}
	return c.accounts.ClearTwoFactorChallenge(account.ID)
}

// Enable turns the second factor on after a fresh password re-verification.
// A bearer credential is not enough to flip this switch.
func (c *TwoFactorChallenge) Enable(account *domain.Account, password string) error {
	if err := c.reverify(account, password); err != nil {
		return err
	}
	if account.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	return c.accounts.SetTwoFactorEnabled(account.ID, true)
}

func (c *TwoFactorChallenge) Disable(account *domain.Account, password string) error {
	if err := c.reverify(account, password); err != nil {
		return err
	}
	if !account.TwoFactorEnabled {
		return ErrTwoFactorAlreadyDisabled
	}
	return c.accounts.SetTwoFactorEnabled(account.ID, false)
}

func (c *TwoFactorChallenge) reverify(account *domain.Account, password string) error {
	if !account.HasPassword() {
		return ErrPasswordless
	}
	ok, err := security.VerifyPassword(account.PasswordHash, password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}
