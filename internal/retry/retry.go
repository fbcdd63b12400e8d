// Package retry implements the caller-side retry policy for optimistic-lock
// conflicts. The storage layer never retries internally; callers that want
// retry semantics wrap their read-modify-write loop with Do.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/taskboard/taskboard/internal/storage"
)

// Defaults for the conflict retry policy.
const (
	DefaultMaxAttempts     = 5
	DefaultInitialInterval = 10 * time.Millisecond
	DefaultMaxInterval     = 250 * time.Millisecond
)

// Policy bounds a conflict retry loop.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy returns the policy used when the caller does not tune one.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// Do runs fn, retrying with exponential backoff while fn returns
// storage.ErrConflict. fn must re-fetch the entity and rebuild its write
// from the fresh version on every attempt. Any other error, including
// storage.ErrNotFound, stops the loop immediately. When attempts run out
// the last conflict error is returned.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultInitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultMaxInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval

	operation := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if storage.IsConflict(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	wrapped := backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(policy.MaxAttempts-1))
	return backoff.Retry(operation, wrapped)
}
