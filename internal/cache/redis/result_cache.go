package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acyclops/marketpulse/internal/domain"
)

// ResultCache implements domain.ResultCache with plain GET / SET EX on
// serialized query results. Concurrent misses may compute twice; the queries
// it fronts are idempotent reads with short TTLs, so the duplicate work is
// cheaper than coordination.
type ResultCache struct {
	rdb *redis.Client
}

// NewResultCache creates a ResultCache backed by the given Client.
func NewResultCache(c *Client) *ResultCache {
	return &ResultCache{rdb: c.Underlying()}
}

var _ domain.ResultCache = (*ResultCache)(nil)

func resultKey(key string) string {
	return "result:" + key
}

// GetOrCompute returns the cached bytes for key, or runs compute and stores
// its result with the given TTL. A cache read error falls through to compute
// rather than failing the request; a write error after compute is also
// swallowed so the caller still gets the fresh result.
func (rc *ResultCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	rk := resultKey(key)

	cached, err := rc.rdb.Get(ctx, rk).Bytes()
	if err == nil {
		return cached, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("redis: get result %s: %w", key, err)
	}

	fresh, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	_ = rc.rdb.Set(ctx, rk, fresh, ttl).Err()
	return fresh, nil
}

// Invalidate drops a cached result.
func (rc *ResultCache) Invalidate(ctx context.Context, key string) error {
	if err := rc.rdb.Del(ctx, resultKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate result %s: %w", key, err)
	}
	return nil
}
