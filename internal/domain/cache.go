package domain

import (
	"context"
	"time"
)

// BetCache provides fast bet lookups in front of the store.
type BetCache interface {
	Set(ctx context.Context, bet Bet) error
	Get(ctx context.Context, id string) (Bet, error)
	Invalidate(ctx context.Context, id string) error
}

// LockManager provides distributed locking. It serializes the
// read-modify-write cycles on a bet's vote ledger and on a user's stats row.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Signal is one bus message. Channel names the channel the message was
// published on, even when the subscription used a glob pattern.
type Signal struct {
	Channel string
	Payload []byte
}

// SignalBus fans bet events out to interested consumers (the WebSocket hub).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan Signal, error)
}
