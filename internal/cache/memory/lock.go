package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// LockManager implements domain.LockManager within one process. go-cache's
// Add is atomic and fails on a live key, which gives SETNX semantics; the
// TTL frees locks whose holder never unlocked.
type LockManager struct {
	c  *cache.Cache
	mu sync.Mutex
}

// NewLockManager returns an empty lock table.
func NewLockManager() *LockManager {
	return &LockManager{c: cache.New(cache.NoExpiration, cleanupInterval)}
}

// Acquire takes the lock for key or returns domain.ErrLockHeld.
func (l *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	if err := l.c.Add(key, token, ttl); err != nil {
		return nil, fmt.Errorf("memory: lock %s: %w", key, domain.ErrLockHeld)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if v, ok := l.c.Get(key); ok && v.(string) == token {
				l.c.Delete(key)
			}
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
