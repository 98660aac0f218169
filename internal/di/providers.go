package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/vkozii/authgate/internal/app"
	"github.com/vkozii/authgate/internal/config"
	"github.com/vkozii/authgate/internal/database"
	"github.com/vkozii/authgate/internal/health"
	"github.com/vkozii/authgate/internal/http/handler"
	"github.com/vkozii/authgate/internal/http/middleware"
	"github.com/vkozii/authgate/internal/http/router"
	"github.com/vkozii/authgate/internal/observability"
	"github.com/vkozii/authgate/internal/repository"
	"github.com/vkozii/authgate/internal/security"
	"github.com/vkozii/authgate/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewAccountRepository,
	repository.NewLoginAttemptRepository,
	repository.NewEphemeralTokenRepository,
)

var ServiceSet = wire.NewSet(
	provideJWTManager,
	provideLockoutPolicy,
	provideTwoFactorChallenge,
	provideTokenRegistry,
	provideThrottleGuard,
	service.NewAuthorizationPolicy,
	service.NewDevNotifier,
	wire.Bind(new(service.Notifier), new(*service.DevNotifier)),
	provideCaptchaVerifier,
	service.NewAuthService,
	service.NewAdminService,
)

var HTTPSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewAdminHandler,
	provideRateLimiters,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

// RateLimiters carries the three per-surface limiter chains so wire can
// distinguish them; they share one type otherwise.
type RateLimiters struct {
	Global router.Middleware
	Auth   router.Middleware
	Forgot router.Middleware
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRuntimeDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	report, err := database.Seed(db, cfg.BootstrapAdminEmail)
	if err != nil {
		return nil, err
	}
	if report.PromotedAdmin {
		logger.Info("bootstrap admin promoted", "email", cfg.BootstrapAdminEmail)
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessTTL)
}

func provideLockoutPolicy(
	accounts repository.AccountRepository,
	attempts repository.LoginAttemptRepository,
	cfg *config.Config,
	logger *slog.Logger,
) *service.LockoutPolicy {
	return service.NewLockoutPolicy(accounts, attempts, cfg.LockoutThreshold, cfg.LockoutDuration, logger)
}

func provideTwoFactorChallenge(
	accounts repository.AccountRepository,
	notifier service.Notifier,
	cfg *config.Config,
	logger *slog.Logger,
) *service.TwoFactorChallenge {
	return service.NewTwoFactorChallenge(accounts, notifier, cfg.TwoFactorCodeTTL, logger)
}

func provideTokenRegistry(tokens repository.EphemeralTokenRepository) *service.TokenRegistry {
	return service.NewTokenRegistry(tokens, security.NewRandomString)
}

func throttlePolicyFromConfig(cfg *config.Config) service.ThrottlePolicy {
	return service.ThrottlePolicy{
		FreeAttempts: cfg.ThrottleFreeAttempts,
		BaseDelay:    cfg.ThrottleBaseDelay,
		MaxDelay:     cfg.ThrottleMaxDelay,
		ResetWindow:  cfg.ThrottleResetWindow,
	}
}

// The backoff guard is distributed when Redis is configured so horizontally
// scaled replicas share one failure budget per identity.
func provideThrottleGuard(cfg *config.Config, redisClient redis.UniversalClient) service.ThrottleGuard {
	if redisClient != nil {
		return service.NewRedisThrottleGuard(redisClient, cfg.RateLimitRedisPrefix+":throttle", throttlePolicyFromConfig(cfg))
	}
	return service.NewInMemoryThrottleGuard(throttlePolicyFromConfig(cfg))
}

func provideCaptchaVerifier() service.CaptchaVerifier {
	return service.DevCaptchaVerifier{}
}

func provideRateLimiters(cfg *config.Config, redisClient redis.UniversalClient) RateLimiters {
	if redisClient != nil {
		return RateLimiters{
			Global: middleware.NewDistributedRateLimiter(
				middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RateLimitRedisPrefix+":api"),
				cfg.APIRateLimitPerMin, time.Minute, middleware.FailOpen, "api",
			).Middleware(),
			Auth: middleware.NewDistributedRateLimiter(
				middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RateLimitRedisPrefix+":auth"),
				cfg.AuthRateLimitPerMin, time.Minute, middleware.FailClosed, "auth",
			).Middleware(),
			Forgot: middleware.NewDistributedRateLimiter(
				middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RateLimitRedisPrefix+":forgot"),
				cfg.ForgotRateLimitPerMin, time.Minute, middleware.FailClosed, "forgot",
			).Middleware(),
		}
	}
	return RateLimiters{
		Global: middleware.NewRateLimiter(cfg.APIRateLimitPerMin, time.Minute).Middleware(),
		Auth:   middleware.NewRateLimiter(cfg.AuthRateLimitPerMin, time.Minute).Middleware(),
		Forgot: middleware.NewRateLimiter(cfg.ForgotRateLimitPerMin, time.Minute).Middleware(),
	}
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	adminHandler *handler.AdminHandler,
	jwt *security.JWTManager,
	authz service.AuthorizationPolicy,
	limiters RateLimiters,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:    authHandler,
		AdminHandler:   adminHandler,
		JWTManager:     jwt,
		Authorization:  authz,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		APIRateRPM:     cfg.APIRateLimitPerMin,
		AuthRateRPM:    cfg.AuthRateLimitPerMin,
		ForgotRateRPM:  cfg.ForgotRateLimitPerMin,
		GlobalLimiter:  limiters.Global,
		AuthLimiter:    limiters.Auth,
		ForgotLimiter:  limiters.Forgot,
		Readiness:      readiness,
		EnableOTelHTTP: cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	checkers := make([]health.Checker, 0, 2)
	if c := health.NewDBChecker(db); c != nil {
		checkers = append(checkers, c)
	}
	if c := health.NewRedisChecker(redisClient); c != nil {
		checkers = append(checkers, c)
	}
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, cfg.StartupGracePeriod, checkers...)
}

// MigrationRunner applies schema migrations and the bootstrap seed, for use
// from the migrate CLI without starting the server.
type MigrationRunner struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewMigrationRunner(cfg *config.Config, db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{cfg: cfg, db: db}
}

func (m *MigrationRunner) Run() (*database.SeedReport, error) {
	if err := database.Migrate(m.db); err != nil {
		return nil, err
	}
	return database.Seed(m.db, m.cfg.BootstrapAdminEmail)
}
