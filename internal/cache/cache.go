// Package cache provides the best-effort cache store consumed by the
// write path for invalidation and by read paths for derived views.
//
// Cache entries are advisory: their absence never affects correctness,
// only staleness. The coherency layer in this package deletes entries
// after every successful mutation; a failed deletion is logged and
// swallowed because a stale cache is a nuisance while a rolled-back
// mutation would be a correctness violation.
package cache

import (
	"context"
	"time"
)

// Store is the best-effort key-value cache contract. Implementations must
// be safe for concurrent use. Get returns ok=false for a missing or
// expired key; that is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// DeleteByPattern removes every key matching pattern. Patterns are
	// prefix globs: a literal prefix terminated by a single '*'.
	DeleteByPattern(ctx context.Context, pattern string) error

	Exists(ctx context.Context, key string) (bool, error)
}
