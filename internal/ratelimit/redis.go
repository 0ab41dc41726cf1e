package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// fixedWindowScript increments the counter and starts the window on the
// first hit. Returns {count, pttl}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter shares fixed-window counters across instances. Expiry is
// delegated to Redis key TTLs, so no sweep is needed.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limits Limits
}

// NewRedisLimiter creates a limiter backed by client.
func NewRedisLimiter(client *redis.Client, prefix string, limits Limits) *RedisLimiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	if prefix == "" {
		prefix = "strumhub:rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, limits: limits}
}

// NewRedisLimiterFromURL parses a redis:// URL and pings the server.
func NewRedisLimiterFromURL(ctx context.Context, url, prefix string, limits Limits) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisLimiter(client, prefix, limits), nil
}

// Check atomically counts one request in Redis.
func (l *RedisLimiter) Check(ctx context.Context, identity string, role models.Role, capability string) (*Result, error) {
	limit := l.limits.For(role)
	key := l.prefix + Key(identity, capability)

	vals, err := fixedWindowScript.Run(ctx, l.client, []string{key}, limit.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", vals)
	}

	count := int(vals[0])
	now := time.Now()
	reset := now.Add(time.Duration(vals[1]) * time.Millisecond)

	if count > limit.MaxRequests {
		return &Result{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  reset,
			RetryAfter: retryAfterSeconds(reset, now),
			Limit:      limit.MaxRequests,
		}, nil
	}
	return &Result{
		Allowed:   true,
		Remaining: limit.MaxRequests - count,
		ResetTime: reset,
		Limit:     limit.MaxRequests,
	}, nil
}

// Reset deletes one counter.
func (l *RedisLimiter) Reset(ctx context.Context, identity, capability string) error {
	return l.client.Del(ctx, l.prefix+Key(identity, capability)).Err()
}

// Clear deletes every counter under the limiter's prefix.
func (l *RedisLimiter) Clear(ctx context.Context) error {
	iter := l.client.Scan(ctx, 0, l.prefix+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := l.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan rate limit keys: %w", err)
	}
	if len(batch) > 0 {
		return l.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
