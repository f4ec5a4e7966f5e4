package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard records keys with SET NX so a second caller presenting the same key
// within the TTL is told it already ran. The dispatcher keys it by job id and
// attempt number to suppress a duplicate provider call for one claim.
type Guard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewGuard returns a guard whose keys live under prefix for ttl.
func NewGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{client: client, prefix: prefix, ttl: ttl}
}

// Acquire returns true the first time key is seen.
func (g *Guard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(key), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, errors.Join(ErrGuardFailed, err)
	}
	return ok, nil
}

// Release forgets key. Used when the guarded action failed and may be retried.
func (g *Guard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.key(key)).Err(); err != nil {
		return errors.Join(ErrGuardFailed, err)
	}
	return nil
}

func (g *Guard) key(k string) string {
	return g.prefix + k
}
