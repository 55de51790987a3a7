package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how a publish is attempted.
type RetryPolicy struct {
	// Retries is the number of attempts after the first.
	Retries int
	// BaseBackoff is the delay before the first retry, doubled on each
	// further retry.
	BaseBackoff time.Duration
	// Timeout bounds each attempt. Zero leaves attempts bounded by ctx only.
	Timeout time.Duration
}

// Normalize fills zero fields with DefaultBaseBackoff and defaultTimeout.
// Negative retries are rejected.
func (p RetryPolicy) Normalize(defaultTimeout time.Duration) (RetryPolicy, error) {
	if p.Retries < 0 {
		return p, fmt.Errorf("retries must be >= 0, got %d", p.Retries)
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultBaseBackoff
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}
	return p, nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; Retry returns it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls attempt until it succeeds, returns a Permanent error, the
// retries run out or ctx ends. Errors are prefixed with name.
func Retry(ctx context.Context, name string, p RetryPolicy, attempt func(ctx context.Context) error) error {
	attempts := 1 + p.Retries
	var lastErr error

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			if err := Backoff(ctx, p.BaseBackoff, i); err != nil {
				return fmt.Errorf("%s: context canceled during backoff: %w", name, err)
			}
		}

		lastErr = p.once(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: non-retriable error: %w", name, perm.err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

func (p RetryPolicy) once(ctx context.Context, attempt func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return attempt(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return attempt(attemptCtx)
}
