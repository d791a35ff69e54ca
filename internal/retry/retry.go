// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry holds the retry, backoff, and fallback policy shared by the
// retrieval coordinator and the generation call sites.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pdiddy/research-agent/pkg/types"
)

// Policy describes how many times to try an operation and how long to wait
// between attempts. The zero Policy tries once.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// FromConfig converts the configured policy.
func FromConfig(c types.RetryConfig) Policy {
	return Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		Multiplier:  c.Multiplier,
	}
}

// WithAttempts returns a copy of p trying n times.
func (p Policy) WithAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the delay before attempt n (n >= 1 is the first retry).
// The delay starts at BaseDelay and grows by Multiplier, capped at MaxDelay.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(n-1)))
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0) {
		d = p.MaxDelay
	}
	return d
}

// retryAfter is implemented by errors that carry a server-requested delay.
type retryAfter interface {
	RetryAfter() time.Duration
}

// Permanent wraps err so Do stops retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do calls fn until it succeeds, returns a Permanent error, the attempts
// run out, or ctx is done. When the failing error reports a RetryAfter
// longer than the computed backoff, the longer delay wins. The attempt
// number passed to fn starts at 1.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	n := p.attempts()
	for attempt := 1; attempt <= n; attempt++ {
		if attempt > 1 {
			wait := p.Backoff(attempt - 1)
			var ra retryAfter
			if errors.As(lastErr, &ra) && ra.RetryAfter() > wait {
				wait = ra.RetryAfter()
				if p.MaxDelay > 0 && wait > p.MaxDelay {
					wait = p.MaxDelay
				}
			}
			if err := sleep(ctx, wait); err != nil {
				return fmt.Errorf("after %d attempt(s): %w", attempt-1, lastErr)
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if n == 1 {
		return lastErr
	}
	return fmt.Errorf("after %d attempt(s): %w", n, lastErr)
}

// DoWithFallback runs fn under p and returns fallback() when every attempt
// fails. The returned error is the last failure, so callers can log why the
// fallback was used; the value is always usable.
func DoWithFallback[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error), fallback func() T) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context, attempt int) error {
		v, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return fallback(), err
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
