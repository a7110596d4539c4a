package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "arang:ratelimit:"

// RateLimiter throttles message traffic per user with a fixed
// one-minute window in Redis.
type RateLimiter struct {
	client *Client
	limit  int64
}

// NewRateLimiter creates a limiter allowing requestsPerMinute plus a
// burst allowance per window.
func NewRateLimiter(client *Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  int64(requestsPerMinute + burst),
	}
}

// Allow reports whether a request under key fits the current window.
// Returns (allowed, remaining, windowReset, error).
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	windowKey := rateLimitPrefix + key
	reset := time.Now().Truncate(time.Minute).Add(time.Minute)

	pipe := r.client.rdb.Pipeline()
	count := pipe.Incr(ctx, windowKey)
	pipe.ExpireNX(ctx, windowKey, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check: %w", err)
	}

	used := count.Val()
	remaining := r.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return used <= r.limit, int(remaining), reset, nil
}
