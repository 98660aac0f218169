package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/authgate_test")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LockoutThreshold != 5 {
		t.Fatalf("default lockout threshold: got %d want 5", cfg.LockoutThreshold)
	}
	if cfg.LockoutDuration != 15*time.Minute {
		t.Fatalf("default lockout duration: got %v want 15m", cfg.LockoutDuration)
	}
	if cfg.TwoFactorCodeTTL != 10*time.Minute {
		t.Fatalf("default 2fa ttl: got %v want 10m", cfg.TwoFactorCodeTTL)
	}
	if cfg.ActivationTokenTTL != 24*time.Hour {
		t.Fatalf("default activation ttl: got %v want 24h", cfg.ActivationTokenTTL)
	}
	if cfg.PasswordResetTokenTTL != 30*time.Minute {
		t.Fatalf("default reset ttl: got %v want 30m", cfg.PasswordResetTokenTTL)
	}
	if cfg.EmailChangeTokenTTL != time.Hour {
		t.Fatalf("default email change ttl: got %v want 1h", cfg.EmailChangeTokenTTL)
	}
	if cfg.JWTAccessTTL != time.Hour {
		t.Fatalf("default access ttl: got %v want 1h", cfg.JWTAccessTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LOCKOUT_MAX_FAILED_ATTEMPTS", "3")
	t.Setenv("LOCKOUT_DURATION", "5m")
	t.Setenv("PASSWORD_RESET_TOKEN_TTL", "10m")
	t.Setenv("BOOTSTRAP_ADMIN_EMAIL", " Admin@Example.COM ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LockoutThreshold != 3 || cfg.LockoutDuration != 5*time.Minute {
		t.Fatalf("lockout overrides not applied: %d %v", cfg.LockoutThreshold, cfg.LockoutDuration)
	}
	if cfg.PasswordResetTokenTTL != 10*time.Minute {
		t.Fatalf("reset ttl override not applied: %v", cfg.PasswordResetTokenTTL)
	}
	if cfg.BootstrapAdminEmail != "admin@example.com" {
		t.Fatalf("bootstrap admin email not normalized: %q", cfg.BootstrapAdminEmail)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing database url", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL is required"},
		{"short jwt secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET must be at least 32 chars"},
		{"zero lockout threshold", map[string]string{"LOCKOUT_MAX_FAILED_ATTEMPTS": "0"}, "LOCKOUT_MAX_FAILED_ATTEMPTS must be > 0"},
		{"huge 2fa ttl", map[string]string{"TWO_FACTOR_CODE_TTL": "2h"}, "TWO_FACTOR_CODE_TTL must be between 1s and 1h"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
