package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// Lease is a held distributed lock. Refresh extends it, Release gives it up;
// both are no-ops once the lease has been released.
type Lease interface {
	Refresh(ctx context.Context) error
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// SignalBus provides pub/sub for runner events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BBOCache shares top-of-book quotes with monitors.
type BBOCache interface {
	SetBBO(ctx context.Context, bbo BBO) error
	GetBBO(ctx context.Context, assetID string) (BBO, error)
}
