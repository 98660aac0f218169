package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/vkozii/authgate/internal/domain"
	"github.com/vkozii/authgate/internal/repository"
)

// TokenRegistry issues and redeems single-use, time-bounded tokens. Raw
// tokens carry 256 bits of entropy and only their sha256 reaches storage.
type TokenRegistry struct {
	tokens    repository.EphemeralTokenRepository
	newRandom func(int) (string, error)
	now       func() time.Time
}

func NewTokenRegistry(tokens repository.EphemeralTokenRepository, newRandom func(int) (string, error)) *TokenRegistry {
	return &TokenRegistry{tokens: tokens, newRandom: newRandom, now: func() time.Time { return time.Now().UTC() }}
}

// Issue invalidates any outstanding token of the same purpose for the
// subject, then stores a fresh one and returns the raw string.
func (r *TokenRegistry) Issue(purpose domain.TokenPurpose, accountID uint, payload string, ttl time.Duration) (string, error) {
	now := r.now()
	if err := r.tokens.InvalidateActiveByAccountPurpose(accountID, purpose, now); err != nil {
		return "", fmt.Errorf("invalidate prior tokens: %w", err)
	}
	raw, err := r.newRandom(32)
	if err != nil {
		return "", err
	}
	record := &domain.EphemeralToken{
		TokenHash: hashToken(raw),
		Purpose:   purpose,
		AccountID: accountID,
		Payload:   payload,
		ExpiresAt: now.Add(ttl),
	}
	if err := r.tokens.Create(record); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return raw, nil
}

// Redeem resolves the raw token under the given purpose and consumes it.
// Exactly one of N concurrent redeemers wins; the rest see ErrTokenAlreadyUsed.
func (r *TokenRegistry) Redeem(raw string, purpose domain.TokenPurpose) (*domain.EphemeralToken, error) {
	record, err := r.tokens.FindByHashPurpose(hashToken(raw), purpose)
	if err != nil {
		if errors.Is(err, repository.ErrEphemeralTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if record.UsedAt != nil {
		return nil, ErrTokenAlreadyUsed
	}
	now := r.now()
	if now.After(record.ExpiresAt) {
		// Opportunistic cleanup; the expiry verdict stands either way.
		_ = r.tokens.DeleteByID(record.ID)
		return nil, ErrTokenExpired
	}
	if err := r.tokens.Consume(record.ID, now); err != nil {
		if errors.Is(err, repository.ErrEphemeralTokenNotFound) {
			return nil, ErrTokenAlreadyUsed
		}
		return nil, err
	}
	record.UsedAt = &now
	return record, nil
}

// Sweep removes expired entries. Redemption is already safe without it.
func (r *TokenRegistry) Sweep() (int64, error) {
	return r.tokens.DeleteExpired(r.now())
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
