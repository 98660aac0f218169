package service

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisThrottleBumpScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local base_ms = tonumber(ARGV[2])
local multiplier = tonumber(ARGV[3])
local max_ms = tonumber(ARGV[4])
local reset_ms = tonumber(ARGV[5])
local free_attempts = tonumber(ARGV[6])

local key = KEYS[1]
local fail_count = tonumber(redis.call("HGET", key, "fail_count") or "0")
local last_failure_ms = tonumber(redis.call("HGET", key, "last_failure_ms") or "0")

if last_failure_ms == 0 or (now_ms - last_failure_ms) > reset_ms then
  fail_count = 0
end

fail_count = fail_count + 1
local delay = 0
if fail_count > free_attempts then
  delay = math.floor(base_ms * (multiplier ^ (fail_count - free_attempts - 1)))
end
if delay > max_ms then
  delay = max_ms
end

local cooldown_until_ms = now_ms + delay
redis.call("HSET", key, "fail_count", tostring(fail_count), "last_failure_ms", tostring(now_ms), "cooldown_until_ms", tostring(cooldown_until_ms))
redis.call("PEXPIRE", key, reset_ms + delay + 60000)
return delay
`)

// RedisThrottleGuard shares failure state across instances. The bump is a
// Lua script so count, delay, and cooldown move together.
type RedisThrottleGuard struct {
	client redis.UniversalClient
	prefix string
	policy ThrottlePolicy
}

func NewRedisThrottleGuard(client redis.UniversalClient, prefix string, policy ThrottlePolicy) *RedisThrottleGuard {
	if prefix == "" {
		prefix = "authgate_throttle"
	}
	return &RedisThrottleGuard{client: client, prefix: prefix, policy: normalizeThrottlePolicy(policy)}
}

func (g *RedisThrottleGuard) Check(ctx context.Context, scope ThrottleScope, identity string) (time.Duration, error) {
	fields, err := g.client.HGetAll(ctx, g.key(scope, identity)).Result()
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, nil
	}
	nowMS := time.Now().UTC().UnixMilli()
	lastFailureMS, _ := strconv.ParseInt(fields["last_failure_ms"], 10, 64)
	cooldownUntilMS, _ := strconv.ParseInt(fields["cooldown_until_ms"], 10, 64)
	if lastFailureMS == 0 || nowMS-lastFailureMS > g.policy.ResetWindow.Milliseconds() {
		return 0, nil
	}
	if cooldownUntilMS <= nowMS {
		return 0, nil
	}
	return time.Duration(cooldownUntilMS-nowMS) * time.Millisecond, nil
}

func (g *RedisThrottleGuard) RegisterFailure(ctx context.Context, scope ThrottleScope, identity string) (time.Duration, error) {
	delayMS, err := redisThrottleBumpScript.Run(ctx, g.client, []string{g.key(scope, identity)},
		time.Now().UTC().UnixMilli(),
		g.policy.BaseDelay.Milliseconds(),
		g.policy.Multiplier,
		g.policy.MaxDelay.Milliseconds(),
		g.policy.ResetWindow.Milliseconds(),
		g.policy.FreeAttempts,
	).Int64()
	if err != nil {
		return 0, err
	}
	return time.Duration(delayMS) * time.Millisecond, nil
}

func (g *RedisThrottleGuard) Reset(ctx context.Context, scope ThrottleScope, identity string) error {
	return g.client.Del(ctx, g.key(scope, identity)).Err()
}

func (g *RedisThrottleGuard) key(scope ThrottleScope, identity string) string {
	return g.prefix + ":" + throttleKey(scope, identity)
}
