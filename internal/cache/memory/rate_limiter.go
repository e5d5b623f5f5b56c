package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// idleLimiterTTL evicts limiters for keys that stopped sending requests.
const idleLimiterTTL = 10 * time.Minute

// RateLimiter implements domain.RateLimiter with one token bucket per key.
// limit requests per window become a bucket refilling at window/limit with
// burst limit, which admits the same steady rate as a sliding window.
type RateLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex
}

// NewRateLimiter returns an empty limiter table.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: cache.New(idleLimiterTTL, cleanupInterval)}
}

func (rl *RateLimiter) get(key string, limit int, window time.Duration) *rate.Limiter {
	id := fmt.Sprintf("%s|%d|%d", key, limit, window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if v, ok := rl.limiters.Get(id); ok {
		rl.limiters.SetDefault(id, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	rl.limiters.SetDefault(id, lim)
	return lim
}

// Allow reports whether one more request for key fits.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	return rl.get(key, limit, window).Allow(), nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
