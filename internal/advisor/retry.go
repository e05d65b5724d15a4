package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds provider calls: each attempt gets AttemptTimeout and
// attempt n waits n*Backoff before the next one.
type RetryPolicy struct {
	MaxAttempts    int
	Backoff        time.Duration
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Backoff:        500 * time.Millisecond,
		AttemptTimeout: 20 * time.Second,
	}
}

// retryable reports errors worth another attempt.
func retryable(err error) bool {
	return !errors.Is(err, ErrAuth) && !errors.Is(err, ErrNotConfigured)
}

// Do runs fn until it succeeds, fails permanently or runs out of attempts.
// It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := p.attempt(ctx, fn)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil || attempt == attempts {
			return "", attempt, err
		}

		wait := time.Duration(attempt) * p.Backoff
		slog.WarnContext(ctx, "Advisor attempt failed, retrying",
			"attempt", attempt,
			"wait", wait,
			"error", err)
		select {
		case <-ctx.Done():
			return "", attempt, ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", attempts, fmt.Errorf("advisor retries exhausted: %w", lastErr)
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(ctx)
}
