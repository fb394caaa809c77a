// Package retry provides the single bounded retry combinator shared by the
// blackboard compare-and-swap path and the reasoning-call path. Callers supply
// a classifier that decides which errors are worth retrying; everything else
// fails immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Classifier reports whether an error is transient and worth retrying.
type Classifier func(error) bool

// Options bounds a retry loop.
type Options struct {
	MaxAttempts     uint64        // Total attempts including the first (minimum 1)
	InitialInterval time.Duration // First backoff delay; grows exponentially
	MaxInterval     time.Duration // Ceiling for a single delay
}

// DefaultOptions are suitable for low-contention CAS retries: five attempts
// with short exponential backoff.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:     5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, the attempt
// bound is exhausted, or the context is cancelled. The last error seen is
// returned on exhaustion; nil classifiers treat every error as permanent.
func Do(ctx context.Context, op func() error, retryable Classifier, opts Options) error {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.InitialInterval
	eb.MaxInterval = opts.MaxInterval

	b := backoff.WithContext(backoff.WithMaxRetries(eb, opts.MaxAttempts-1), ctx)

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if retryable != nil && retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(wrapped, b)
}
