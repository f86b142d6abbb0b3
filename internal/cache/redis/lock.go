package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/betpal/betpal/internal/domain"
)

// unlockScript deletes a lock key only when its value still equals the
// holder's token, so an expired lock re-acquired by someone else is never
// released by the original holder.
const unlockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SETNX + TTL and a scripted
// conditional unlock. The bet service holds bet:{id} around ledger rewrites;
// the stats updater holds stats:{userID} around read-modify-write cycles.
type LockManager struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:    c.Underlying(),
		unlock: redis.NewScript(unlockScript),
	}
}

// Acquire takes the lock for key with the given TTL, returning
// domain.ErrLockHeld when another holder has it. The returned release
// function is idempotent and works even after the caller's context is
// cancelled.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	fullKey := "lock:" + key
	token := uuid.NewString()

	ok, err := lm.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlock.Run(relCtx, lm.rdb, []string{fullKey}, token).Err()
		})
	}
	return release, nil
}

var _ domain.LockManager = (*LockManager)(nil)
