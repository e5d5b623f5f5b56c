package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// releaseTimeout bounds the release call, which runs detached from the
// caller's context so a cancelled action still frees its lock.
const releaseTimeout = 5 * time.Second

var _ domain.LockManager = (*LockManager)(nil)

// LockManager hands out per-(address, market) action locks so two processes
// sharing a wallet cannot interleave a commit with its reveal. Each lock
// holds a random token and is only deleted by the holder of that token.
type LockManager struct {
	rdb  *redis.Client
	keys keyspace
}

func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.Underlying(), keys: c.keys}
}

// Acquire takes key for ttl. A lock already held elsewhere yields
// domain.ErrLockHeld. Calling the returned release more than once is safe.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lk := lm.keys.key("lock", key)
	token := uuid.NewString()

	err := lm.rdb.SetArgs(ctx, lk, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	case err != nil:
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = releaseLockScript.Run(rctx, lm.rdb, []string{lk}, token).Err()
		})
	}, nil
}
