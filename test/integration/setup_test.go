package integration

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

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vkozii/authgate/internal/config"
	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/health"
	"github.com/vkozii/authgate/internal/http/handler"
	"github.com/vkozii/authgate/internal/http/middleware"
	"github.com/vkozii/authgate/internal/http/router"
	"github.com/vkozii/authgate/internal/repository"
	"github.com/vkozii/authgate/internal/security"
	"github.com/vkozii/authgate/internal/service"
)

// The suite runs the fully wired HTTP stack over a real listener with a
// miniredis backend, so the redis rate limiters, the redis throttle guard
// and the readiness probes are exercised the same way production wires them.

var integrationDBSeq atomic.Int64

const testPassword = "Str0ng-Pass!"

type serverOptions struct {
	apiRPM    int
	forgotRPM int
	throttle  service.ThrottlePolicy
}

func defaultServerOptions() serverOptions {
	return serverOptions{
		apiRPM:    10000,
		forgotRPM: 10000,
		throttle:  service.ThrottlePolicy{FreeAttempts: 50, BaseDelay: time.Second, ResetWindow: time.Hour},
	}
}

type testServer struct {
	baseURL  string
	client   *http.Client
	notifier *captureNotifier
	accounts repository.AccountRepository
	redis    *miniredis.Miniredis
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

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:authgate_integration_test_%d?mode=memory&cache=shared&_busy_timeout=5000", integrationDBSeq.Add(1))
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

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

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
	guard := service.NewRedisThrottleGuard(redisClient, "it:throttle", opts.throttle)

	lockout := service.NewLockoutPolicy(accounts, attempts, cfg.LockoutThreshold, cfg.LockoutDuration, log)
	twoFactor := service.NewTwoFactorChallenge(accounts, notifier, cfg.TwoFactorCodeTTL, log)
	registry := service.NewTokenRegistry(tokens, security.NewRandomString)
	jwtMgr := security.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessTTL)
	authz := service.NewAuthorizationPolicy()
	authSvc := service.NewAuthService(cfg, accounts, lockout, twoFactor, registry, jwtMgr, notifier, service.DevCaptchaVerifier{}, guard, log)
	adminSvc := service.NewAdminService(accounts, attempts, authz, authSvc, log)

	global := middleware.NewDistributedRateLimiter(middleware.NewRedisFixedWindowLimiter(redisClient, "it:ratelimit:api"), opts.apiRPM, time.Minute, middleware.FailOpen, "api")
	forgot := middleware.NewDistributedRateLimiter(middleware.NewRedisFixedWindowLimiter(redisClient, "it:ratelimit:forgot"), opts.forgotRPM, time.Minute, middleware.FailClosed, "forgot")

	h := router.NewRouter(router.Dependencies{
		AuthHandler:   handler.NewAuthHandler(authSvc, accounts),
		AdminHandler:  handler.NewAdminHandler(adminSvc),
		JWTManager:    jwtMgr,
		Authorization: authz,
		APIRateRPM:    opts.apiRPM,
		AuthRateRPM:   opts.apiRPM,
		ForgotRateRPM: opts.forgotRPM,
		GlobalLimiter: global.Middleware(),
		ForgotLimiter: forgot.Middleware(),
		Readiness:     health.NewProbeRunner(2*time.Second, 0, health.NewDBChecker(db), health.NewRedisChecker(redisClient)),
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL:  srv.URL,
		client:   srv.Client(),
		notifier: notifier,
		accounts: accounts,
		redis:    mr,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.baseURL+path, rd)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return out
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := readBody(t, resp)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func (ts *testServer) registerAndActivate(t *testing.T, email string) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": testPassword,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status=%d", resp.StatusCode)
	}
	resp.Body.Close()
	token := ts.notifier.ActivationTokens[email]
	if token == "" {
		t.Fatal("no activation token delivered")
	}
	resp = ts.do(t, http.MethodPost, "/api/v1/auth/activate", "", map[string]string{"token": token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate: status=%d", resp.StatusCode)
	}
	resp.Body.Close()
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status=%d", resp.StatusCode)
	}
	body := readBody(t, resp)
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("login response carried no access token: %v", body)
	}
	return token
}
