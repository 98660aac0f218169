package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vkozii/authgate/internal/config"
	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/repository"
	"github.com/vkozii/authgate/internal/security"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var serviceDBSeq atomic.Int64

type fixture struct {
	cfg      *config.Config
	db       *gorm.DB
	accounts repository.AccountRepository
	attempts repository.LoginAttemptRepository
	tokens   repository.EphemeralTokenRepository

	lockout   *LockoutPolicy
	twoFactor *TwoFactorChallenge
	registry  *TokenRegistry
	jwtMgr    *security.JWTManager
	notifier  *recordingNotifier
	guard     ThrottleGuard

	auth  *AuthService
	admin *AdminService
}

type recordingNotifier struct {
	mu sync.Mutex

	ActivationTokens map[string]string
	TwoFactorCodes   map[string]string
	ResetTokens      map[string]string
	EmailChangeLinks map[string]string
	FailNextDelivery bool
	DeliveryCount    int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		ActivationTokens: map[string]string{},
		TwoFactorCodes:   map[string]string{},
		ResetTokens:      map[string]string{},
		EmailChangeLinks: map[string]string{},
	}
}

func (n *recordingNotifier) record(kind map[string]string, key, value string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.DeliveryCount++
	if n.FailNextDelivery {
		n.FailNextDelivery = false
		return fmt.Errorf("smtp unavailable")
	}
	kind[key] = value
	return nil
}

func (n *recordingNotifier) SendActivation(_ context.Context, email, token, _ string) error {
	return n.record(n.ActivationTokens, email, token)
}

func (n *recordingNotifier) SendTwoFactorCode(_ context.Context, email, code string) error {
	return n.record(n.TwoFactorCodes, email, code)
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, token, _ string) error {
	return n.record(n.ResetTokens, email, token)
}

func (n *recordingNotifier) SendEmailChangeConfirmation(_ context.Context, newEmail, link string) error {
	return n.record(n.EmailChangeLinks, newEmail, link)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:authgate_service_test_%d?mode=memory&cache=shared&_busy_timeout=5000", serviceDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&domain.Account{}, &domain.EphemeralToken{}, &domain.LoginAttempt{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		JWTSecret:             "0123456789abcdef0123456789abcdef",
		JWTIssuer:             "authgate",
		JWTAudience:           "authgate-api",
		JWTAccessTTL:          time.Hour,
		LockoutThreshold:      5,
		LockoutDuration:       15 * time.Minute,
		TwoFactorCodeTTL:      10 * time.Minute,
		ActivationTokenTTL:    24 * time.Hour,
		PasswordResetTokenTTL: 30 * time.Minute,
		EmailChangeTokenTTL:   time.Hour,
		AppBaseURL:            "http://localhost:8080",
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := repository.NewAccountRepository(db)
	attempts := repository.NewLoginAttemptRepository(db)
	tokens := repository.NewEphemeralTokenRepository(db)

	fx := &fixture{
		cfg:      cfg,
		db:       db,
		accounts: accounts,
		attempts: attempts,
		tokens:   tokens,
		notifier: newRecordingNotifier(),
		guard:    NewInMemoryThrottleGuard(ThrottlePolicy{FreeAttempts: 3, BaseDelay: time.Second, ResetWindow: time.Hour}),
	}
	fx.lockout = NewLockoutPolicy(accounts, attempts, cfg.LockoutThreshold, cfg.LockoutDuration, log)
	fx.twoFactor = NewTwoFactorChallenge(accounts, fx.notifier, cfg.TwoFactorCodeTTL, log)
	fx.registry = NewTokenRegistry(tokens, security.NewRandomString)
	fx.jwtMgr = security.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessTTL)
	fx.auth = NewAuthService(cfg, accounts, fx.lockout, fx.twoFactor, fx.registry, fx.jwtMgr, fx.notifier, DevCaptchaVerifier{}, fx.guard, log)
	fx.admin = NewAdminService(accounts, attempts, NewAuthorizationPolicy(), fx.auth, log)
	return fx
}

const fixturePassword = "Str0ng-Pass!"

func (fx *fixture) seedAccount(t *testing.T, email string, active bool) *domain.Account {
	t.Helper()
	hash, err := security.HashPassword(fixturePassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a := &domain.Account{Email: email, PasswordHash: hash, IsActive: active, Role: domain.RoleUser}
	if err := fx.accounts.Create(a); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func (fx *fixture) reload(t *testing.T, id uint) *domain.Account {
	t.Helper()
	a, err := fx.accounts.FindByID(id)
	if err != nil {
		t.Fatalf("reload account %d: %v", id, err)
	}
	return a
}

func (fx *fixture) countAttempts(t *testing.T, email string, success bool) int {
	t.Helper()
	attempts, err := fx.attempts.ListByEmail(email, 1000)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	n := 0
	for _, a := range attempts {
		if a.Success == success {
			n++
		}
	}
	return n
}
