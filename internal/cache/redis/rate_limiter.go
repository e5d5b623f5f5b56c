package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

var _ domain.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a sliding-window limiter shared by every server process.
// Request times are kept in one sorted set per key and trimmed in the same
// script that admits the request.
type RateLimiter struct {
	rdb  *redis.Client
	keys keyspace
	now  func() time.Time
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), keys: c.keys, now: time.Now}
}

// Allow records one request for key when fewer than limit fall inside the
// trailing window. A non-positive limit admits everything.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	res, err := slidingWindowScript.Run(ctx, rl.rdb,
		[]string{rl.keys.key("ratelimit", key)},
		rl.now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("redis: rate limit %s: script returned %d values", key, len(res))
	}
	return res[0] == 1, nil
}
