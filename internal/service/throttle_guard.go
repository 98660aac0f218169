package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// ThrottleScope separates failure budgets. Two-factor mismatches are
// throttled here precisely because they never touch the password lockout
// counter.
type ThrottleScope string

const (
	ThrottleScopeTwoFactor ThrottleScope = "twofactor"
	ThrottleScopeForgot    ThrottleScope = "forgot"
)

type ThrottlePolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

// ThrottleGuard applies exponential backoff per identity after repeated
// failures within a scope.
type ThrottleGuard interface {
	Check(ctx context.Context, scope ThrottleScope, identity string) (time.Duration, error)
	RegisterFailure(ctx context.Context, scope ThrottleScope, identity string) (time.Duration, error)
	Reset(ctx context.Context, scope ThrottleScope, identity string) error
}

type NoopThrottleGuard struct{}

func NewNoopThrottleGuard() *NoopThrottleGuard { return &NoopThrottleGuard{} }

func (*NoopThrottleGuard) Check(context.Context, ThrottleScope, string) (time.Duration, error) {
	return 0, nil
}

func (*NoopThrottleGuard) RegisterFailure(context.Context, ThrottleScope, string) (time.Duration, error) {
	return 0, nil
}

func (*NoopThrottleGuard) Reset(context.Context, ThrottleScope, string) error { return nil }

type throttleEntry struct {
	FailCount     int
	LastFailureAt time.Time
	CooldownUntil time.Time
}

type InMemoryThrottleGuard struct {
	mu     sync.Mutex
	policy ThrottlePolicy
	data   map[string]throttleEntry
}

func NewInMemoryThrottleGuard(policy ThrottlePolicy) *InMemoryThrottleGuard {
	return &InMemoryThrottleGuard{policy: normalizeThrottlePolicy(policy), data: make(map[string]throttleEntry)}
}

func (g *InMemoryThrottleGuard) Check(_ context.Context, scope ThrottleScope, identity string) (time.Duration, error) {
	now := time.Now().UTC()
	key := throttleKey(scope, identity)

	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.data[key]
	if !ok {
		return 0, nil
	}
	if now.Sub(entry.LastFailureAt) > g.policy.ResetWindow {
		delete(g.data, key)
		return 0, nil
	}
	if now.After(entry.CooldownUntil) {
		return 0, nil
	}
	return entry.CooldownUntil.Sub(now), nil
}

func (g *InMemoryThrottleGuard) RegisterFailure(_ context.Context, scope ThrottleScope, identity string) (time.Duration, error) {
	now := time.Now().UTC()
	key := throttleKey(scope, identity)

	g.mu.Lock()
	defer g.mu.Unlock()

	entry := g.data[key]
	if entry.LastFailureAt.IsZero() || now.Sub(entry.LastFailureAt) > g.policy.ResetWindow {
		entry.FailCount = 0
	}
	entry.FailCount++
	entry.LastFailureAt = now
	delay := g.computeDelay(entry.FailCount)
	entry.CooldownUntil = now.Add(delay)
	g.data[key] = entry
	return delay, nil
}

func (g *InMemoryThrottleGuard) Reset(_ context.Context, scope ThrottleScope, identity string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.data, throttleKey(scope, identity))
	return nil
}

func (g *InMemoryThrottleGuard) computeDelay(failCount int) time.Duration {
	if failCount <= g.policy.FreeAttempts {
		return 0
	}
	power := math.Pow(g.policy.Multiplier, float64(failCount-g.policy.FreeAttempts-1))
	delay := time.Duration(float64(g.policy.BaseDelay) * power)
	if delay > g.policy.MaxDelay {
		return g.policy.MaxDelay
	}
	return delay
}

func throttleKey(scope ThrottleScope, identity string) string {
	v := strings.TrimSpace(strings.ToLower(identity))
	if v == "" {
		v = "anonymous"
	}
	return fmt.Sprintf("%s:%s", scope, v)
}

func normalizeThrottlePolicy(policy ThrottlePolicy) ThrottlePolicy {
	if policy.FreeAttempts < 0 {
		policy.FreeAttempts = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 2 * time.Second
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = 5 * time.Minute
	}
	if policy.ResetWindow <= 0 {
		policy.ResetWindow = 30 * time.Minute
	}
	return policy
}
