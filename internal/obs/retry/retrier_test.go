package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescuemesh/notification-service/internal/obs/retry"
)

var errBoom = errors.New("boom")

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		Name:     "test",
		Attempts: attempts,
		Backoff:  retry.ExpoJitter{Base: time.Millisecond, Max: 2 * time.Millisecond},
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	}, fastPolicy(5))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_Exhausts(t *testing.T) {
	calls := 0
	var exhausted error
	p := fastPolicy(3)
	p.OnExhaust = func(err error) { exhausted = err }

	err := retry.Do(context.Background(), func() error {
		calls++
		return errBoom
	}, p)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, exhausted, errBoom)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	p := fastPolicy(5)
	p.Retryable = func(err error) bool { return !errors.Is(err, context.Canceled) }

	err := retry.Do(context.Background(), func() error {
		calls++
		return context.Canceled
	}, p)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{
		Name:     "test",
		Attempts: 5,
		Backoff:  retry.ExpoJitter{Base: time.Minute},
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := retry.Do(ctx, func() error { return errBoom }, p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpoJitter_CapsAtMax(t *testing.T) {
	b := retry.ExpoJitter{Base: time.Second, Max: 4 * time.Second}
	assert.Equal(t, time.Second, b.Next(0))
	assert.Equal(t, 2*time.Second, b.Next(1))
	assert.Equal(t, 4*time.Second, b.Next(2))
	assert.Equal(t, 4*time.Second, b.Next(10))
}
