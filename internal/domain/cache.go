package domain

import (
	"context"
	"time"
)

// ResultCache fronts expensive analytics queries with a short-TTL cache of
// serialized results. There is deliberately no single-flight protection:
// concurrent misses may both compute, which is acceptable for idempotent
// read-only queries with a short TTL.
type ResultCache interface {
	// GetOrCompute returns the cached bytes for key if present; otherwise it
	// invokes compute, stores the result with the given TTL, and returns it.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error)
}

// LockManager provides distributed advisory locking. Acquire is try-once:
// a held lock fails immediately with ErrLockHeld instead of blocking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed request rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
