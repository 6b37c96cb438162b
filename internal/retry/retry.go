// Package retry implements the exponential backoff policy spec.md §5/§7
// names for transient IMAP/SMTP failures and the Apple Podcasts show-notes
// fetch: a fixed number of attempts separated by a 3x-growing delay.
package retry

import (
	"context"
	"time"
)

// Schedule builds count backoff delays starting at base and tripling each
// step, e.g. Schedule(5*time.Second, 3) => 5s, 15s, 45s.
func Schedule(base time.Duration, count int) []time.Duration {
	delays := make([]time.Duration, count)
	d := base
	for i := range delays {
		delays[i] = d
		d *= 3
	}
	return delays
}

// Do calls fn until it succeeds, classify reports the error as permanent,
// or delays is exhausted, sleeping delays[attempt] between attempts. A nil
// classify treats every error as retryable. ctx cancellation aborts a
// pending sleep immediately.
func Do(ctx context.Context, delays []time.Duration, classify func(error) bool, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if classify != nil && !classify(err) {
			return lastErr
		}
		if attempt >= len(delays) {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delays[attempt]):
		}
	}
}
