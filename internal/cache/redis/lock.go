package redis

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

//go:embed scripts/unlock.lua
var unlockLua string

// LockManager implements domain.Locker with SET NX PX and a token-checked
// release. The owner-mode chain writer holds it around nonce lookup and
// submission so replicas sharing one account never reuse a nonce.
type LockManager struct {
	c      *Client
	unlock *redis.Script
}

var _ domain.Locker = (*LockManager)(nil)

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{c: c, unlock: redis.NewScript(unlockLua)}
}

// Acquire takes the lock for ttl or returns domain.ErrLockHeld. The returned
// release func only deletes the key while this caller still owns it, and may
// be called more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lk := lm.c.Key("lock", key)
	token := uuid.NewString()

	err := lm.c.rdb.SetArgs(ctx, lk, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case err == redis.Nil:
		return nil, domain.ErrLockHeld
	case err != nil:
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlock.Run(releaseCtx, lm.c.rdb, []string{lk}, token).Err()
		})
	}, nil
}
