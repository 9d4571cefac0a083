// Package backoff implements the exponential backoff policy used for
// retries and polling throughout searchsync. The delay is an explicit
// function of the attempt count with a ceiling, so retry behavior is
// testable in isolation rather than buried in sleep loops.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy computes retry delays. The zero value is unusable; construct
// with Default or fill every field.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Multiplier grows the delay per attempt (typically 2.0).
	Multiplier float64
	// Max caps the delay; attempts beyond the ceiling all wait Max.
	Max time.Duration
	// Jitter adds up to ±25% randomness when true, spreading retries
	// from concurrent cycles.
	Jitter bool
}

// Default returns the policy used when configuration does not override
// it: 500ms doubling up to 30s, with jitter.
func Default() Policy {
	return Policy{
		Initial:    500 * time.Millisecond,
		Multiplier: 2.0,
		Max:        30 * time.Second,
		Jitter:     true,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(p.Initial)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.Max) {
			d = float64(p.Max)
			break
		}
	}

	delay := time.Duration(d)
	if delay > p.Max {
		delay = p.Max
	}

	if p.Jitter && delay > 0 {
		quarter := int64(delay / 4)
		if quarter > 0 {
			delay += time.Duration(rand.Int63n(2*quarter) - quarter)
		}
	}

	return delay
}

// Sleep waits Delay(attempt) or until the context is cancelled,
// returning ctx.Err in the latter case.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry runs fn up to attempts times, sleeping between failures per the
// policy. It returns nil on the first success, the context error if
// cancelled, and otherwise the last failure. shouldRetry can stop the
// loop early for errors that retrying cannot fix.
func Retry(ctx context.Context, p Policy, attempts int, shouldRetry func(error) bool, fn func() error) error {
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn()
		if last == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(last) {
			return last
		}
		if attempt == attempts-1 {
			break
		}
		if err := p.Sleep(ctx, attempt); err != nil {
			return err
		}
	}
	return last
}
