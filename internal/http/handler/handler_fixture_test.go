package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vkozii/authgate/internal/config"
	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/http/handler"
	"github.com/vkozii/authgate/internal/http/router"
	"github.com/vkozii/authgate/internal/repository"
	"github.com/vkozii/authgate/internal/security"
	"github.com/vkozii/authgate/internal/service"
)

var handlerDBSeq atomic.Int64

const testPassword = "Str0ng-Pass!"

type apiFixture struct {
	cfg      *config.Config
	db       *gorm.DB
	accounts repository.AccountRepository
	notifier *captureNotifier
	jwtMgr   *security.JWTManager
	srv      http.Handler
}

type captureNotifier struct {
	mu               sync.Mutex
	ActivationTokens map[string]string
	TwoFactorCodes   map[string]string
	ResetTokens      map[string]string
	EmailChangeLinks map[string]string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{
		ActivationTokens: map[string]string{},
		TwoFactorCodes:   map[string]string{},
		ResetTokens:      map[string]string{},
		EmailChangeLinks: map[string]string{},
	}
}

func (n *captureNotifier) store(kind map[string]string, key, value string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	kind[key] = value
	return nil
}

func (n *captureNotifier) SendActivation(_ context.Context, email, token, _ string) error {
	return n.store(n.ActivationTokens, email, token)
}

func (n *captureNotifier) SendTwoFactorCode(_ context.Context, email, code string) error {
	return n.store(n.TwoFactorCodes, email, code)
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, email, token, _ string) error {
	return n.store(n.ResetTokens, email, token)
}

func (n *captureNotifier) SendEmailChangeConfirmation(_ context.Context, newEmail, link string) error {
	return n.store(n.EmailChangeLinks, newEmail, link)
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:authgate_handler_test_%d?mode=memory&cache=shared&_busy_timeout=5000", handlerDBSeq.Add(1))
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
	notifier := newCaptureNotifier()
	guard := service.NewInMemoryThrottleGuard(service.ThrottlePolicy{FreeAttempts: 10, BaseDelay: time.Second, ResetWindow: time.Hour})

	lockout := service.NewLockoutPolicy(accounts, attempts, cfg.LockoutThreshold, cfg.LockoutDuration, log)
	twoFactor := service.NewTwoFactorChallenge(accounts, notifier, cfg.TwoFactorCodeTTL, log)
	registry := service.NewTokenRegistry(tokens, security.NewRandomString)
	jwtMgr := security.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessTTL)
	authz := service.NewAuthorizationPolicy()
	authSvc := service.NewAuthService(cfg, accounts, lockout, twoFactor, registry, jwtMgr, notifier, service.DevCaptchaVerifier{}, guard, log)
	adminSvc := service.NewAdminService(accounts, attempts, authz, authSvc, log)

	srv := router.NewRouter(router.Dependencies{
		AuthHandler:   handler.NewAuthHandler(authSvc, accounts),
		AdminHandler:  handler.NewAdminHandler(adminSvc),
		JWTManager:    jwtMgr,
		Authorization: authz,
		APIRateRPM:    10000,
		AuthRateRPM:   10000,
		ForgotRateRPM: 10000,
	})

	return &apiFixture{cfg: cfg, db: db, accounts: accounts, notifier: notifier, jwtMgr: jwtMgr, srv: srv}
}

func (fx *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	fx.srv.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rr)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %q", rr.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// registerAndActivate walks the public signup flow and returns the account id.
func (fx *apiFixture) registerAndActivate(t *testing.T, email string) uint {
	t.Helper()
	rr := fx.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": testPassword,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: status=%d body=%s", rr.Code, rr.Body.String())
	}
	token := fx.notifier.ActivationTokens[email]
	if token == "" {
		t.Fatal("no activation token delivered")
	}
	rr = fx.do(t, http.MethodPost, "/api/v1/auth/activate", "", map[string]string{"token": token})
	if rr.Code != http.StatusOK {
		t.Fatalf("activate: status=%d body=%s", rr.Code, rr.Body.String())
	}
	account, err := fx.accounts.FindByEmail(email)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	return account.ID
}

func (fx *apiFixture) login(t *testing.T, email, password string) string {
	t.Helper()
	rr := fx.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("login response carried no access token: %s", rr.Body.String())
	}
	return token
}

func (fx *apiFixture) promote(t *testing.T, id uint) {
	t.Helper()
	if err := fx.accounts.Update(id, map[string]any{"role": domain.RoleAdmin}); err != nil {
		t.Fatalf("promote: %v", err)
	}
}
