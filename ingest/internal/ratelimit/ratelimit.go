// Package ratelimit bounds webhook intake per provider.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/metrics"
)

const keyPrefix = "ratelimit:webhooks:"

// RateLimiter admits or rejects one request for a provider.
type RateLimiter interface {
	Allow(ctx context.Context, provider string) (bool, error)
	Close() error
}

// admit trims entries older than the window, then adds one member if the
// provider is still under its limit. Returns 1 when admitted.
var admit = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local cutoff = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
local ttl    = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', cutoff)
if redis.call('ZCARD', key) >= limit then
	return 0
end
redis.call('ZADD', key, now, ARGV[5])
redis.call('PEXPIRE', key, ttl)
return 1
`)

// Redis is a sliding-window limiter shared by every replica that points at
// the same Redis.
type Redis struct {
	client *redis.Client
	limit  int64
	window time.Duration
	seq    atomic.Uint64
	now    func() time.Time
}

// NewRedisRateLimiter dials redisURL and verifies the connection.
func NewRedisRateLimiter(redisURL string, limit int, window time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rate limit redis unreachable: %w", err)
	}
	return NewWithClient(client, limit, window), nil
}

// NewWithClient takes ownership of client; Close closes it.
func NewWithClient(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{
		client: client,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

func (r *Redis) Allow(ctx context.Context, provider string) (bool, error) {
	now := r.now().UnixNano()
	cutoff := now - r.window.Nanoseconds()
	// Two admissions in the same nanosecond still need distinct members.
	member := strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(r.seq.Add(1), 10)

	n, err := admit.Run(ctx, r.client, []string{keyPrefix + provider},
		now, cutoff, r.limit, r.window.Milliseconds()+1, member).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check for %s: %w", provider, err)
	}
	if n != 1 {
		metrics.RateLimitHits.WithLabelValues(provider).Inc()
		return false, nil
	}
	return true, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// NoOpRateLimiter admits everything. Used when rate limiting is off.
type NoOpRateLimiter struct{}

func (*NoOpRateLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (*NoOpRateLimiter) Close() error { return nil }
