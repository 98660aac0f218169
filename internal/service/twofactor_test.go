package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTwoFactorIssueAndVerify(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	account := fx.seedAccount(t, "tfa@example.com", true)
	now := time.Now().UTC()

	if err := fx.twoFactor.Issue(ctx, account, now); err != nil {
		t.Fatalf("issue: %v", err)
	}

	got := fx.reload(t, account.ID)
	if len(got.TwoFactorCode) != 6 {
		t.Fatalf("stored code %q, want 6 digits", got.TwoFactorCode)
	}
	if got.TwoFactorExpiresAt == nil {
		t.Fatal("challenge expiry not stamped")
	}
	if sent := fx.notifier.TwoFactorCodes[account.Email]; sent != got.TwoFactorCode {
		t.Fatalf("delivered code %q does not match stored %q", sent, got.TwoFactorCode)
	}

	if err := fx.twoFactor.Verify(got, got.TwoFactorCode, now); err != nil {
		t.Fatalf("verify: %v", err)
	}
	cleared := fx.reload(t, account.ID)
	if cleared.TwoFactorCode != "" || cleared.TwoFactorExpiresAt != nil {
		t.Fatal("challenge not cleared after success")
	}
}

func TestTwoFactorVerifyMismatchKeepsChallenge(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	account := fx.seedAccount(t, "tfa@example.com", true)
	now := time.Now().UTC()

	if err := fx.twoFactor.Issue(ctx, account, now); err != nil {
		t.Fatalf("issue: %v", err)
	}
	got := fx.reload(t, account.ID)

	if err := fx.twoFactor.Verify(got, "000000", now); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("mismatch err = %v, want ErrTwoFactorCodeInvalid", err)
	}
	// The stored code stays good until it expires.
	after := fx.reload(t, account.ID)
	if after.TwoFactorCode != got.TwoFactorCode {
		t.Fatal("mismatch cleared the stored code")
	}
	if err := fx.twoFactor.Verify(after, after.TwoFactorCode, now); err != nil {
		t.Fatalf("verify after mismatch: %v", err)
	}
}

func TestTwoFactorVerifyExpiredClearsChallenge(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	account := fx.seedAccount(t, "tfa@example.com", true)
	now := time.Now().UTC()

	if err := fx.twoFactor.Issue(ctx, account, now); err != nil {
		t.Fatalf("issue: %v", err)
	}
	got := fx.reload(t, account.ID)

	late := now.Add(fx.cfg.TwoFactorCodeTTL + time.Minute)
	if err := fx.twoFactor.Verify(got, got.TwoFactorCode, late); !errors.Is(err, ErrTwoFactorCodeExpired) {
		t.Fatalf("expired err = %v, want ErrTwoFactorCodeExpired", err)
	}
	after := fx.reload(t, account.ID)
	if after.TwoFactorCode != "" || after.TwoFactorExpiresAt != nil {
		t.Fatal("expired challenge not cleared")
	}
}

func TestTwoFactorVerifyWithoutChallenge(t *testing.T) {
	fx := newFixture(t)
	account := fx.seedAccount(t, "tfa@example.com", true)

	err := fx.twoFactor.Verify(account, "123456", time.Now().UTC())
	if !errors.Is(err, ErrTwoFactorCodeExpired) {
		t.Fatalf("err = %v, want ErrTwoFactorCodeExpired", err)
	}
}

func TestTwoFactorEnableDisable(t *testing.T) {
	fx := newFixture(t)
	account := fx.seedAccount(t, "tfa@example.com", true)

	t.Run("enable requires the password", func(t *testing.T) {
		if err := fx.twoFactor.Enable(account, "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("err = %v, want ErrInvalidCredentials", err)
		}
		if err := fx.twoFactor.Enable(account, fixturePassword); err != nil {
			t.Fatalf("enable: %v", err)
		}
		if !fx.reload(t, account.ID).TwoFactorEnabled {
			t.Fatal("flag not set")
		}
	})

	t.Run("enable twice conflicts", func(t *testing.T) {
		got := fx.reload(t, account.ID)
		if err := fx.twoFactor.Enable(got, fixturePassword); !errors.Is(err, ErrTwoFactorAlreadyEnabled) {
			t.Fatalf("err = %v, want ErrTwoFactorAlreadyEnabled", err)
		}
	})

	t.Run("disable clears any pending challenge", func(t *testing.T) {
		got := fx.reload(t, account.ID)
		if err := fx.twoFactor.Issue(context.Background(), got, time.Now().UTC()); err != nil {
			t.Fatalf("issue: %v", err)
		}
		got = fx.reload(t, account.ID)
		if err := fx.twoFactor.Disable(got, fixturePassword); err != nil {
			t.Fatalf("disable: %v", err)
		}
		after := fx.reload(t, account.ID)
		if after.TwoFactorEnabled || after.TwoFactorCode != "" || after.TwoFactorExpiresAt != nil {
			t.Fatal("disable left challenge state behind")
		}
	})

	t.Run("disable twice conflicts", func(t *testing.T) {
		got := fx.reload(t, account.ID)
		if err := fx.twoFactor.Disable(got, fixturePassword); !errors.Is(err, ErrTwoFactorAlreadyDisabled) {
			t.Fatalf("err = %v, want ErrTwoFactorAlreadyDisabled", err)
		}
	})
}

func TestTwoFactorEnableWithoutPassword(t *testing.T) {
	fx := newFixture(t)
	account := fx.seedAccount(t, "federated@example.com", true)
	if err := fx.accounts.Update(account.ID, map[string]any{"password_hash": ""}); err != nil {
		t.Fatalf("clear hash: %v", err)
	}
	got := fx.reload(t, account.ID)
	if err := fx.twoFactor.Enable(got, "anything"); !errors.Is(err, ErrPasswordless) {
		t.Fatalf("err = %v, want ErrPasswordless", err)
	}
}
