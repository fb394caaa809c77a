package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastOptions(attempts uint64) Options {
	return Options{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil on first success", func(t *testing.T) {
		calls := 0
		err := Do(ctx, func() error {
			calls++
			return nil
		}, func(error) bool { return true }, fastOptions(5))

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		err := Do(ctx, func() error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		}, func(err error) bool { return errors.Is(err, errTransient) }, fastOptions(5))

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops at the attempt bound and returns the last error", func(t *testing.T) {
		calls := 0
		err := Do(ctx, func() error {
			calls++
			return errTransient
		}, func(error) bool { return true }, fastOptions(3))

		require.ErrorIs(t, err, errTransient)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-retryable errors fail immediately", func(t *testing.T) {
		permanent := errors.New("permanent")
		calls := 0
		err := Do(ctx, func() error {
			calls++
			return permanent
		}, func(err error) bool { return errors.Is(err, errTransient) }, fastOptions(5))

		require.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("nil classifier treats every error as permanent", func(t *testing.T) {
		calls := 0
		err := Do(ctx, func() error {
			calls++
			return errTransient
		}, nil, fastOptions(5))

		require.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops the loop", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := Do(cancelled, func() error {
			return errTransient
		}, func(error) bool { return true }, fastOptions(100))

		require.Error(t, err)
	})
}
