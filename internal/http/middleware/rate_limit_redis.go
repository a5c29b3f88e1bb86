package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisFixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisFixedWindowLimiter shares one counter per key and window across every
// API instance.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	policy = normalizePolicy(policy)
	if l.client == nil {
		return Decision{}, errors.New("redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}
	now := time.Now()
	raw, err := redisFixedWindowScript.Run(ctx, l.client, []string{l.prefix + ":" + key}, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(raw) != 2 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply length %d", len(raw))
	}
	count, ttl := raw[0], time.Duration(raw[1])*time.Millisecond
	resetAt := now.Add(ttl)
	if count > int64(policy.Limit) {
		return Decision{Allowed: false, RetryAfter: ttl, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Remaining: policy.Limit - int(count), ResetAt: resetAt}, nil
}
