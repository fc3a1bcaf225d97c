package redis

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

//go:embed scripts/refresh_lease.lua
var refreshLua string

// unlockLua deletes the lock key only while it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager using SET NX with a TTL and
// token-checked refresh and unlock scripts.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
	refresh  *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
		refresh:  redis.NewScript(refreshLua),
	}
}

// Acquire obtains the lock for key with the given TTL. It returns
// domain.ErrLockHeld if another holder owns it.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.Lease, error) {
	token := uuid.New().String()
	lk := lm.c.key("lock", key)

	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	return &lease{lm: lm, key: lk, token: token, ttl: ttl}, nil
}

type lease struct {
	lm    *LockManager
	key   string
	token string
	ttl   time.Duration

	mu       sync.Mutex
	released bool
}

// Refresh extends the lease by its TTL. It returns domain.ErrLockHeld when
// the key expired and was taken by someone else.
func (l *lease) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	n, err := l.lm.refresh.Run(ctx, l.lm.c.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("redis: refresh lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("redis: refresh lock %s: %w", l.key, domain.ErrLockHeld)
	}
	return nil
}

// Release gives the lock up. It is safe to call more than once and uses its
// own context so it works after the caller's context is cancelled.
func (l *lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = l.lm.unlockSc.Run(ctx, l.lm.c.rdb, []string{l.key}, l.token).Err()
}

// KeepAlive refreshes lease every interval until ctx is done or a refresh
// fails; the error is returned so the caller can stop trading.
func KeepAlive(ctx context.Context, l domain.Lease, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil {
				return err
			}
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)
