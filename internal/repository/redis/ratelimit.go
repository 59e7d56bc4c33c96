package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "chat:ratelimit:"

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RateLimiter is a fixed-window request limiter shared by all replicas
type RateLimiter struct {
	client *Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows requestsPerMinute+burst requests per key each minute
func NewRateLimiter(client *Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  int64(requestsPerMinute + burst),
		window: time.Minute,
		now:    time.Now,
	}
}

// Allow counts one request for key.
// Returns (allowed, remaining, resetTime, error)
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	windowMs := r.window.Milliseconds()
	slot := r.now().UnixMilli() / windowMs
	reset := time.UnixMilli((slot + 1) * windowMs)
	fullKey := fmt.Sprintf("%s%s:%d", rateLimitPrefix, key, slot)

	count, err := fixedWindowScript.Run(ctx, r.client.rdb, []string{fullKey}, windowMs).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to execute rate limit check: %w", err)
	}

	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= r.limit, int(remaining), reset, nil
}
