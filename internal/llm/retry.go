package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/spherical/flyer-extractor/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffStep = 5 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// RetryPolicy runs a single-attempt function until it succeeds, fails with a
// non-retryable error or runs out of attempts.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt (1-based)
	Backoff func(attempt int) time.Duration
	// Retryable decides whether an error is worth another attempt
	Retryable func(err error) bool
	// Sleep waits for d or until ctx is done
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before every wait
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryPolicy returns the policy used against the vision service:
// 3 attempts, waiting min(5s*attempt, 30s) between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		Backoff:     LinearBackoff(defaultBackoffStep, defaultMaxBackoff),
		Retryable:   IsRetryable,
		Sleep:       SleepContext,
	}
}

// LinearBackoff returns min(step*attempt, limit).
func LinearBackoff(step, limit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := step * time.Duration(attempt)
		if d > limit {
			d = limit
		}
		return d
	}
}

// SleepContext waits for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetryable reports whether err is a transient service failure or a malformed response.
func IsRetryable(err error) bool {
	return domain.IsType(err, domain.ErrorTypeTransientService) ||
		domain.IsType(err, domain.ErrorTypeMalformedResponse)
}

// shouldRetry determines if an HTTP status is transient
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusServiceUnavailable: // 503
		return true
	default:
		return false
	}
}

// Do calls op with attempt numbers starting at 1 and returns the last error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !p.Retryable(lastErr) || attempt == p.MaxAttempts {
			return lastErr
		}

		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, wait)
		}
		if err := p.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = def.Backoff
	}
	if p.Retryable == nil {
		p.Retryable = def.Retryable
	}
	if p.Sleep == nil {
		p.Sleep = def.Sleep
	}
	return p
}
