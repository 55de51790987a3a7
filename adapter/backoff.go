package adapter

import (
	"context"
	"time"
)

// DefaultBaseBackoff is the delay before the first retry.
const DefaultBaseBackoff = 500 * time.Millisecond

// Backoff sleeps base * 2^(attempt-1) before retry number attempt (>= 1).
// Returns ctx.Err() if the context ends first.
func Backoff(ctx context.Context, base time.Duration, attempt int) error {
	d := base << uint(attempt-1)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
