package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Multiplier: 2.0, Max: time.Minute}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
	assert.Equal(t, 800*time.Millisecond, p.Delay(3))
}

func TestDelayCapsAtMax(t *testing.T) {
	p := Policy{Initial: time.Second, Multiplier: 2.0, Max: 5 * time.Second}

	assert.Equal(t, 5*time.Second, p.Delay(10))
	assert.Equal(t, 5*time.Second, p.Delay(100))
}

func TestDelayNegativeAttemptClamped(t *testing.T) {
	p := Policy{Initial: time.Second, Multiplier: 2.0, Max: time.Minute}
	assert.Equal(t, time.Second, p.Delay(-3))
}

func TestDelayJitterStaysInBand(t *testing.T) {
	p := Policy{Initial: time.Second, Multiplier: 2.0, Max: time.Minute, Jitter: true}

	for i := 0; i < 100; i++ {
		d := p.Delay(0)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestSleepHonorsCancellation(t *testing.T) {
	p := Policy{Initial: time.Minute, Multiplier: 2.0, Max: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.Sleep(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetrySucceedsEventually(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Multiplier: 1.0, Max: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), p, 5, nil, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Multiplier: 1.0, Max: time.Millisecond}

	calls := 0
	sentinel := errors.New("still broken")
	err := Retry(context.Background(), p, 3, nil, func() error {
		calls++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Multiplier: 1.0, Max: time.Millisecond}

	calls := 0
	permanent := errors.New("permanent")
	err := Retry(context.Background(), p, 5, func(err error) bool {
		return !errors.Is(err, permanent)
	}, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Multiplier: 1.0, Max: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, p, 5, nil, func() error {
		calls++
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
