package transport

import (
	"context"
	"math/rand"
	"time"
)

// Backoff constants for transient failures.
const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 30 * time.Second
)

// Retry runs fn up to maxRetries+1 times, sleeping with exponential
// backoff plus jitter between attempts. Only transient transport errors
// are retried; everything else (including cancellation) surfaces on first
// occurrence. The attempt number is passed to fn so callers can switch to
// resume mode after the first try.
func Retry(ctx context.Context, maxRetries int, fn func(attempt int) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	delay := InitialBackoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(attempt)
		if err == nil || !IsTransient(err) || attempt >= maxRetries {
			return err
		}

		// Full jitter up to the current exponential ceiling.
		sleep := time.Duration(rand.Int63n(int64(delay))) + delay/2
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
		if delay *= 2; delay > MaxBackoff {
			delay = MaxBackoff
		}
	}
}
