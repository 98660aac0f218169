package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/vkozii/authgate/internal/config"
	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/repository"
	"github.com/vkozii/authgate/internal/security"
)

// AuthService composes the lockout policy, two-factor challenge, token
// registry, and session issuer into the account workflows. It owns no state
// of its own; every mutation lands in the credential store or the registry.
type AuthService struct {
	cfg       *config.Config
	accounts  repository.AccountRepository
	lockout   *LockoutPolicy
	twoFactor *TwoFactorChallenge
	registry  *TokenRegistry
	jwtMgr    *security.JWTManager
	notifier  Notifier
	captcha   CaptchaVerifier
	guard     ThrottleGuard
	logger    *slog.Logger
}

type LoginResult struct {
	Account           *domain.Account `json:"account"`
	AccessToken       string          `json:"-"`
	ExpiresAt         time.Time       `json:"expires_at,omitempty"`
	TwoFactorRequired bool            `json:"two_factor_required,omitempty"`
}

var (
	uppercaseRe = regexp.MustCompile(`[A-Z]`)
	lowercaseRe = regexp.MustCompile(`[a-z]`)
	digitRe     = regexp.MustCompile(`[0-9]`)
	specialRe   = regexp.MustCompile(`[^A-Za-z0-9]`)
)

func NewAuthService(
	cfg *config.Config,
	accounts repository.AccountRepository,
	lockout *LockoutPolicy,
	twoFactor *TwoFactorChallenge,
	registry *TokenRegistry,
	jwtMgr *security.JWTManager,
	notifier Notifier,
	captcha CaptchaVerifier,
	guard ThrottleGuard,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		cfg:       cfg,
		accounts:  accounts,
		lockout:   lockout,
		twoFactor: twoFactor,
		registry:  registry,
		jwtMgr:    jwtMgr,
		notifier:  notifier,
		captcha:   captcha,
		guard:     guard,
		logger:    logger,
	}
}

// Register creates an inactive account and dispatches an activation token.
// The caller gets the identity back, never the hash.
func (s *AuthService) Register(ctx context.Context, email, password, captchaToken string) (*domain.Account, error) {
	if s.cfg.CaptchaEnabled {
		if captchaToken == "" {
			return nil, ErrCaptchaRequired
		}
		ok, err := s.captcha.Verify(ctx, captchaToken)
		if err != nil {
			return nil, fmt.Errorf("verify captcha: %w", err)
		}
		if !ok {
			return nil, ErrCaptchaInvalid
		}
	}

	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if _, err := s.accounts.FindByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{Email: email, PasswordHash: hash, IsActive: false, Role: domain.RoleUser}
	if s.isBootstrapAdmin(email) {
		account.Role = domain.RoleAdmin
	}
	if err := s.accounts.Create(account); err != nil {
		return nil, err
	}

	token, err := s.registry.Issue(domain.TokenPurposeActivation, account.ID, "", s.cfg.ActivationTokenTTL)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.SendActivation(ctx, account.Email, token, s.link("/api/v1/auth/activate", token)); err != nil {
		s.logger.WarnContext(ctx, "activation delivery failed", "account_id", account.ID, "error", err)
	}
	return account, nil
}

// Activate redeems an activation token. Token failures stay distinguishable:
// the token is unguessable, so precise errors cost nothing.
func (s *AuthService) Activate(ctx context.Context, token string) (*domain.Account, error) {
	record, err := s.registry.Redeem(token, domain.TokenPurposeActivation)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Update(record.AccountID, map[string]any{"is_active": true, "deactivated_at": nil}); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return s.accounts.FindByID(record.AccountID)
}

// Login runs the password leg. An unknown email walks the same failure path
// and produces the same answer as a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	now := time.Now().UTC()

	account, err := s.accounts.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			s.lockout.RecordAttempt(email, false)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if account.Locked(now) {
		s.lockout.RecordAttempt(email, false)
		return nil, ErrAccountLocked
	}
	if !account.IsActive {
		s.lockout.RecordAttempt(email, false)
		return nil, ErrAccountInactive
	}
	if !account.HasPassword() {
		s.lockout.RecordAttempt(email, false)
		return nil, ErrInvalidCredentials
	}

	valid, err := security.VerifyPassword(account.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	decision, err := s.lockout.Evaluate(account, valid, now)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		if decision.Locked {
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}

	if account.TwoFactorEnabled {
		if err := s.twoFactor.Issue(ctx, account, now); err != nil {
			return nil, err
		}
		// Password passed but the login is not complete yet.
		s.lockout.RecordAttempt(email, false)
		return &LoginResult{Account: account, TwoFactorRequired: true}, nil
	}

	s.lockout.RecordAttempt(email, true)
	return s.issueCredential(account)
}

// VerifyTwoFactor finishes a challenged login. Mistakes here feed the
// independent throttle, never the password lockout counter.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, email, code string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if delay, err := s.guard.Check(ctx, ThrottleScopeTwoFactor, email); err != nil {
		return nil, err
	} else if delay > 0 {
		return nil, ErrThrottled
	}

	account, err := s.accounts.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !account.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}

	if err := s.twoFactor.Verify(account, code, time.Now().UTC()); err != nil {
		if errors.Is(err, ErrTwoFactorCodeInvalid) || errors.Is(err, ErrTwoFactorCodeExpired) {
			if _, gerr := s.guard.RegisterFailure(ctx, ThrottleScopeTwoFactor, email); gerr != nil {
				s.logger.WarnContext(ctx, "two-factor throttle bump failed", "error", gerr)
			}
		}
		return nil, err
	}

	if err := s.guard.Reset(ctx, ThrottleScopeTwoFactor, email); err != nil {
		s.logger.WarnContext(ctx, "two-factor throttle reset failed", "error", err)
	}
	s.lockout.RecordAttempt(email, true)
	return s.issueCredential(account)
}

// EnableTwoFactor and DisableTwoFactor require a fresh password, not a
// bearer credential.
func (s *AuthService) EnableTwoFactor(ctx context.Context, email, password string) error {
	account, err := s.activeAccountByEmail(email)
	if err != nil {
		return err
	}
	return s.twoFactor.Enable(account, password)
}

func (s *AuthService) DisableTwoFactor(ctx context.Context, email, password string) error {
	account, err := s.activeAccountByEmail(email)
	if err != nil {
		return err
	}
	return s.twoFactor.Disable(account, password)
}

// RequestPasswordReset answers success for unknown emails: the response body
// must not reveal whether the address is registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if delay, err := s.guard.Check(ctx, ThrottleScopeForgot, email); err != nil {
		return err
	} else if delay > 0 {
		return ErrThrottled
	}
	if _, err := s.guard.RegisterFailure(ctx, ThrottleScopeForgot, email); err != nil {
		s.logger.WarnContext(ctx, "forgot throttle bump failed", "error", err)
	}

	account, err := s.accounts.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return err
	}
	if !account.IsActive {
		return ErrAccountInactive
	}

	token, err := s.registry.Issue(domain.TokenPurposePasswordReset, account.ID, "", s.cfg.PasswordResetTokenTTL)
	if err != nil {
		return err
	}
	if err := s.notifier.SendPasswordReset(ctx, account.Email, token, s.link("/api/v1/auth/reset-password", token)); err != nil {
		// The stored token stays valid; delivery is best-effort.
		s.logger.WarnContext(ctx, "password reset delivery failed", "account_id", account.ID, "error", err)
	}
	return nil
}

// ResetPassword redeems the token, re-hashes, and forgives past failures.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	record, err := s.registry.Redeem(token, domain.TokenPurposePasswordReset)
	if err != nil {
		return err
	}
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(record.AccountID, hash); err != nil {
		return err
	}
	return s.accounts.ResetFailedLogins(record.AccountID)
}

// ChangePassword is the authenticated variant: current password required,
// new password must differ.
func (s *AuthService) ChangePassword(ctx context.Context, accountID uint, currentPassword, newPassword string) error {
	account, err := s.accounts.FindByID(accountID)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return ErrAccountInactive
	}
	if !account.HasPassword() {
		return ErrPasswordless
	}
	ok, err := security.VerifyPassword(account.PasswordHash, currentPassword)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if currentPassword == newPassword {
		return ErrSamePassword
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.accounts.UpdatePassword(accountID, hash)
}

// Deactivate turns the account off after a fresh password re-verification.
func (s *AuthService) Deactivate(ctx context.Context, accountID uint, password string) error {
	account, err := s.accounts.FindByID(accountID)
	if err != nil {
		return err
	}
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
	now := time.Now().UTC()
	return s.accounts.Update(accountID, map[string]any{"is_active": false, "deactivated_at": now})
}

// RequestEmailChange issues an email-change token carrying the new address
// and notifies that address, not the current one.
func (s *AuthService) RequestEmailChange(ctx context.Context, accountID uint, password, newEmail string) error {
	newEmail = strings.TrimSpace(newEmail)
	if err := validateEmail(newEmail); err != nil {
		return err
	}
	account, err := s.accounts.FindByID(accountID)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return ErrAccountInactive
	}
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
	if existing, err := s.accounts.FindByEmail(newEmail); err == nil && existing.ID != accountID {
		return ErrEmailTaken
	} else if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return err
	}

	token, err := s.registry.Issue(domain.TokenPurposeEmailChange, accountID, newEmail, s.cfg.EmailChangeTokenTTL)
	if err != nil {
		return err
	}
	if err := s.notifier.SendEmailChangeConfirmation(ctx, newEmail, s.link("/api/v1/auth/change-email/confirm", token)); err != nil {
		s.logger.WarnContext(ctx, "email change delivery failed", "account_id", accountID, "error", err)
	}
	return nil
}

// ConfirmEmailChange redeems the token and overwrites the address. The
// uniqueness check repeats here because another account may have claimed the
// address while the token was outstanding.
func (s *AuthService) ConfirmEmailChange(ctx context.Context, token string) (*domain.Account, error) {
	record, err := s.registry.Redeem(token, domain.TokenPurposeEmailChange)
	if err != nil {
		return nil, err
	}
	if existing, err := s.accounts.FindByEmail(record.Payload); err == nil && existing.ID != record.AccountID {
		return nil, ErrEmailTaken
	} else if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}
	if err := s.accounts.UpdateEmail(record.AccountID, record.Payload); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return s.accounts.FindByID(record.AccountID)
}

// LoginWithFederatedIdentity resolves or provisions an account for an
// already-verified external identity. Redirect mechanics live elsewhere.
func (s *AuthService) LoginWithFederatedIdentity(ctx context.Context, federatedID, email string) (*LoginResult, error) {
	if federatedID == "" {
		return nil, ErrInvalidCredentials
	}
	account, err := s.accounts.FindByFederatedID(federatedID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		account, err = s.linkOrCreateFederated(federatedID, email)
	}
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}
	s.lockout.RecordAttempt(account.Email, true)
	return s.issueCredential(account)
}

func (s *AuthService) linkOrCreateFederated(federatedID, email string) (*domain.Account, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	existing, err := s.accounts.FindByEmail(email)
	if err == nil {
		if err := s.accounts.Update(existing.ID, map[string]any{"federated_id": federatedID}); err != nil {
			return nil, err
		}
		return s.accounts.FindByID(existing.ID)
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}
	account := &domain.Account{Email: email, IsActive: true, Role: domain.RoleUser, FederatedID: federatedID}
	if s.isBootstrapAdmin(email) {
		account.Role = domain.RoleAdmin
	}
	if err := s.accounts.Create(account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AuthService) issueCredential(account *domain.Account) (*LoginResult, error) {
	token, err := s.jwtMgr.Sign(account.ID, account.Email, string(account.Role), account.TwoFactorEnabled)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Account:     account,
		AccessToken: token,
		ExpiresAt:   time.Now().UTC().Add(s.cfg.JWTAccessTTL),
	}, nil
}

func (s *AuthService) activeAccountByEmail(email string) (*domain.Account, error) {
	account, err := s.accounts.FindByEmail(strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}
	return account, nil
}

func (s *AuthService) isBootstrapAdmin(email string) bool {
	target := s.cfg.BootstrapAdminEmail
	return target != "" && strings.EqualFold(email, target)
}

func (s *AuthService) link(path, token string) string {
	u, err := url.Parse(s.cfg.AppBaseURL)
	if err != nil {
		return ""
	}
	u.Path = path
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func validateEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 || !uppercaseRe.MatchString(password) ||
		!lowercaseRe.MatchString(password) || !digitRe.MatchString(password) || !specialRe.MatchString(password) {
		return ErrWeakPassword
	}
	return nil
}
