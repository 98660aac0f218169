package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	account := fx.seedAccount(t, "locked@example.com", true)

	for i := 1; i <= 4; i++ {
		if _, err := fx.auth.Login(ctx, account.Email, "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d err = %v, want ErrInvalidCredentials", i, err)
		}
	}
	// The threshold attempt reports the lock, not a bad password.
	if _, err := fx.auth.Login(ctx, account.Email, "wrong-password"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("attempt 5 err = %v, want ErrAccountLocked", err)
	}

	got := fx.reload(t, account.ID)
	if got.FailedLoginAttempts != 5 {
		t.Fatalf("failed attempts = %d, want 5", got.FailedLoginAttempts)
	}
	if got.LockedUntil == nil {
		t.Fatal("lock was not stamped")
	}
}

func TestLoginCorrectPasswordRejectedWhileLocked(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	account := fx.seedAccount(t, "locked@example.com", true)

	until := time.Now().UTC().Add(10 * time.Minute)
	if err := fx.accounts.Update(account.ID, map[string]any{"failed_login_attempts": 5, "locked_until": until}); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	if _, err := fx.auth.Login(ctx, account.Email, fixturePassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
	// The rejected attempt lands in the audit log as a failure.
	if n := fx.countAttempts(t, account.Email, false); n == 0 {
		t.Fatal("no failed attempt recorded for locked login")
	}
}

func TestLoginAfterLockExpiryResetsCounter(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	account := fx.seedAccount(t, "recovered@example.com", true)

	expired := time.Now().UTC().Add(-time.Minute)
	if err := fx.accounts.Update(account.ID, map[string]any{"failed_login_attempts": 5, "locked_until": expired}); err != nil {
		t.Fatalf("seed expired lock: %v", err)
	}

	result, err := fx.auth.Login(ctx, account.Email, fixturePassword)
	if err != nil {
		t.Fatalf("login after expiry: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("no access token issued")
	}

	got := fx.reload(t, account.ID)
	if got.FailedLoginAttempts != 0 {
		t.Fatalf("failed attempts = %d, want 0", got.FailedLoginAttempts)
	}
	if got.LockedUntil != nil {
		t.Fatal("stale lock was not cleared")
	}
}

func TestLoginSuccessResetsPriorFailures(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	account := fx.seedAccount(t, "almost@example.com", true)

	for i := 0; i < 4; i++ {
		if _, err := fx.auth.Login(ctx, account.Email, "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("setup failure err = %v", err)
		}
	}
	if _, err := fx.auth.Login(ctx, account.Email, fixturePassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := fx.reload(t, account.ID); got.FailedLoginAttempts != 0 {
		t.Fatalf("failed attempts = %d, want 0", got.FailedLoginAttempts)
	}
	// A fresh run of failures starts the count from zero again.
	if _, err := fx.auth.Login(ctx, account.Email, "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("post-reset failure err = %v", err)
	}
	if got := fx.reload(t, account.ID); got.FailedLoginAttempts != 1 {
		t.Fatalf("failed attempts = %d, want 1", got.FailedLoginAttempts)
	}
}
