package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer    string
	JWTAudience  string
	JWTSecret    string
	JWTAccessTTL time.Duration

	LockoutThreshold int
	LockoutDuration  time.Duration

	TwoFactorCodeTTL time.Duration

	ActivationTokenTTL    time.Duration
	PasswordResetTokenTTL time.Duration
	EmailChangeTokenTTL   time.Duration

	AppBaseURL          string
	BootstrapAdminEmail string
	CaptchaEnabled      bool

	AuthRateLimitPerMin   int
	APIRateLimitPerMin    int
	ForgotRateLimitPerMin int
	RateLimitRedisPrefix  string
	CORSAllowedOrigins    []string

	ThrottleFreeAttempts int
	ThrottleBaseDelay    time.Duration
	ThrottleMaxDelay     time.Duration
	ThrottleResetWindow  time.Duration

	ReadinessProbeTimeout time.Duration
	StartupGracePeriod    time.Duration
	ShutdownTimeout       time.Duration
	HTTPDrainTimeout      time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Env:                 env,
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		JWTIssuer:           getEnv("JWT_ISSUER", "authgate"),
		JWTAudience:         getEnv("JWT_AUDIENCE", "authgate-api"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		LockoutThreshold:    getEnvInt("LOCKOUT_MAX_FAILED_ATTEMPTS", 5),
		AppBaseURL:          getEnv("APP_BASE_URL", "http://localhost:8080"),
		BootstrapAdminEmail: strings.TrimSpace(strings.ToLower(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),
		CaptchaEnabled:      getEnvBool("CAPTCHA_ENABLED", false),
		AuthRateLimitPerMin: getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		APIRateLimitPerMin:  getEnvInt("API_RATE_LIMIT_PER_MIN", 120),

		ForgotRateLimitPerMin: getEnvInt("FORGOT_RATE_LIMIT_PER_MIN", 5),
		RateLimitRedisPrefix:  getEnv("RATE_LIMIT_REDIS_PREFIX", "authgate:ratelimit"),
		CORSAllowedOrigins:    splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		ThrottleFreeAttempts:  getEnvInt("THROTTLE_FREE_ATTEMPTS", 3),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "authgate"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", true),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", true),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", true),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	for _, d := range []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"JWT_ACCESS_TTL", "1h", &cfg.JWTAccessTTL},
		{"LOCKOUT_DURATION", "15m", &cfg.LockoutDuration},
		{"TWO_FACTOR_CODE_TTL", "10m", &cfg.TwoFactorCodeTTL},
		{"ACTIVATION_TOKEN_TTL", "24h", &cfg.ActivationTokenTTL},
		{"PASSWORD_RESET_TOKEN_TTL", "30m", &cfg.PasswordResetTokenTTL},
		{"EMAIL_CHANGE_TOKEN_TTL", "1h", &cfg.EmailChangeTokenTTL},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
		{"THROTTLE_BASE_DELAY", "1s", &cfg.ThrottleBaseDelay},
		{"THROTTLE_MAX_DELAY", "1m", &cfg.ThrottleMaxDelay},
		{"THROTTLE_RESET_WINDOW", "15m", &cfg.ThrottleResetWindow},
		{"READINESS_PROBE_TIMEOUT", "2s", &cfg.ReadinessProbeTimeout},
		{"STARTUP_GRACE_PERIOD", "0s", &cfg.StartupGracePeriod},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"HTTP_DRAIN_TIMEOUT", "10s", &cfg.HTTPDrainTimeout},
	} {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dest = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 chars")
	}
	if c.JWTAccessTTL <= 0 || c.JWTAccessTTL > 24*time.Hour {
		errs = append(errs, "JWT_ACCESS_TTL must be between 1s and 24h")
	}
	if c.LockoutThreshold <= 0 {
		errs = append(errs, "LOCKOUT_MAX_FAILED_ATTEMPTS must be > 0")
	}
	if c.LockoutDuration <= 0 {
		errs = append(errs, "LOCKOUT_DURATION must be > 0")
	}
	if c.TwoFactorCodeTTL <= 0 || c.TwoFactorCodeTTL > time.Hour {
		errs = append(errs, "TWO_FACTOR_CODE_TTL must be between 1s and 1h")
	}
	if c.ActivationTokenTTL <= 0 {
		errs = append(errs, "ACTIVATION_TOKEN_TTL must be > 0")
	}
	if c.PasswordResetTokenTTL <= 0 {
		errs = append(errs, "PASSWORD_RESET_TOKEN_TTL must be > 0")
	}
	if c.EmailChangeTokenTTL <= 0 {
		errs = append(errs, "EMAIL_CHANGE_TOKEN_TTL must be > 0")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.ForgotRateLimitPerMin <= 0 {
		errs = append(errs, "FORGOT_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.ThrottleFreeAttempts < 0 {
		errs = append(errs, "THROTTLE_FREE_ATTEMPTS must be >= 0")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
