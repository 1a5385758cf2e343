package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kiptrack/internal/core"
)

// RetryPolicy bounds how often an unavailable store is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts backing off 1s, 2s, ... capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the delay before retry number attempt (0-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Retry runs fn until it succeeds, fails with something other than
// core.ErrUnavailable, or the attempts run out. It returns ctx.Err() if the
// context ends while waiting.
func Retry(ctx context.Context, p RetryPolicy, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil || !errors.Is(err, core.ErrUnavailable) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := p.Backoff(attempt)
		slog.WarnContext(ctx, "Store unavailable, retrying",
			"operation", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// unavailable marks err as a transient store failure unless it already
// carries a classification the caller acts on.
func unavailable(err error) error {
	if err == nil || errors.Is(err, core.ErrUnavailable) || errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(core.ErrUnavailable, err)
}
