package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/betpal/betpal/internal/domain"
)

const betTTL = 5 * time.Minute

// BetCache implements domain.BetCache using Redis hashes with JSON-serialized
// bet data.
//
// Key schema:
//
//	bet:{id} - hash with field "data" containing JSON
type BetCache struct {
	rdb *redis.Client
}

// NewBetCache creates a BetCache backed by the given Client.
func NewBetCache(c *Client) *BetCache {
	return &BetCache{rdb: c.Underlying()}
}

func betKey(id string) string { return "bet:" + id }

// Set stores a bet in the cache with a 5-minute TTL.
func (bc *BetCache) Set(ctx context.Context, bet domain.Bet) error {
	data, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("redis: marshal bet %s: %w", bet.ID, err)
	}

	key := betKey(bet.ID)

	pipe := bc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, betTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set bet %s: %w", bet.ID, err)
	}
	return nil
}

// Get retrieves a bet by its ID from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (bc *BetCache) Get(ctx context.Context, id string) (domain.Bet, error) {
	data, err := bc.rdb.HGet(ctx, betKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("redis: get bet %s: %w", id, err)
	}

	var bet domain.Bet
	if err := json.Unmarshal(data, &bet); err != nil {
		return domain.Bet{}, fmt.Errorf("redis: unmarshal bet %s: %w", id, err)
	}
	return bet, nil
}

// Invalidate removes a bet from the cache. Mutating operations call this
// after every store write so readers never see a stale status.
func (bc *BetCache) Invalidate(ctx context.Context, id string) error {
	if err := bc.rdb.Del(ctx, betKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate bet %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BetCache = (*BetCache)(nil)
