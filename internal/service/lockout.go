package service

import (
	"log/slog"
	"time"

	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/repository"
)

// LockoutDecision reports whether a login attempt may proceed.
type LockoutDecision struct {
	Allowed     bool
	Locked      bool
	LockedUntil *time.Time
}

// LockoutPolicy gates login attempts on failure history. Counter updates go
// through the repository's atomic increment; the policy itself holds no
// mutable state.
type LockoutPolicy struct {
	accounts  repository.AccountRepository
	attempts  repository.LoginAttemptRepository
	threshold int
	duration  time.Duration
	logger    *slog.Logger
}

func NewLockoutPolicy(accounts repository.AccountRepository, attempts repository.LoginAttemptRepository, threshold int, duration time.Duration, logger *slog.Logger) *LockoutPolicy {
	return &LockoutPolicy{accounts: accounts, attempts: attempts, threshold: threshold, duration: duration, logger: logger}
}

// Evaluate applies the lockout rules for one attempt. An active lock skips
// the password verdict entirely. A valid password resets the counter and
// lazily clears any stale lock; the success audit record is the caller's to
// append once the whole workflow completes.
func (p *LockoutPolicy) Evaluate(account *domain.Account, passwordValid bool, now time.Time) (LockoutDecision, error) {
	if account.Locked(now) {
		p.RecordAttempt(account.Email, false)
		return LockoutDecision{Locked: true, LockedUntil: account.LockedUntil}, nil
	}

	if !passwordValid {
		lockUntil := now.Add(p.duration)
		count, locked, err := p.accounts.RegisterFailedLogin(account.ID, p.threshold, lockUntil)
		if err != nil {
			return LockoutDecision{}, err
		}
		p.RecordAttempt(account.Email, false)
		if locked {
			p.logger.Warn("account locked after repeated failures",
				"account_id", account.ID, "failures", count, "locked_until", lockUntil)
			return LockoutDecision{Locked: true, LockedUntil: &lockUntil}, nil
		}
		return LockoutDecision{}, nil
	}

	if account.FailedLoginAttempts > 0 || account.LockedUntil != nil {
		if err := p.accounts.ResetFailedLogins(account.ID); err != nil {
			return LockoutDecision{}, err
		}
	}
	return LockoutDecision{Allowed: true}, nil
}

// RecordAttempt appends to the audit log. The log is advisory; a write
// failure must not abort the authentication verdict.
func (p *LockoutPolicy) RecordAttempt(email string, success bool) {
	if err := p.attempts.Append(&domain.LoginAttempt{Email: email, Success: success}); err != nil {
		p.logger.Warn("failed to append login attempt record", "email", email, "error", err)
	}
}
