package services

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// RetryPolicy retries a failing operation with capped exponential backoff.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// Multiplier grows the wait after each failed attempt.
	Multiplier float64

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns 3 attempts with 1s, 2s backoff capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
	}
}

// RetryPolicyFromSettings builds a policy from configuration,
// falling back to defaults for unset values.
func RetryPolicyFromSettings(s domain.RetrySettings) RetryPolicy {
	p := DefaultRetryPolicy()
	if s.MaxAttempts > 0 {
		p.MaxAttempts = s.MaxAttempts
	}
	if s.InitialBackoff > 0 {
		p.InitialBackoff = s.InitialBackoff
	}
	if s.MaxBackoff > 0 {
		p.MaxBackoff = s.MaxBackoff
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. Exhaustion returns *domain.RetryExhaustedError wrapping
// the last error. Validation errors, context errors and errors that report
// Temporary() == false are returned unwrapped without further attempts.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := max(1, p.MaxAttempts)
	backoff := p.InitialBackoff
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		logger.Debug("%s attempt %d/%d failed, retrying in %s: %v", op, attempt, attempts, backoff, lastErr)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = p.next(backoff)
	}

	return &domain.RetryExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

func (p RetryPolicy) next(d time.Duration) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	n := time.Duration(float64(d) * mult)
	if p.MaxBackoff > 0 && n > p.MaxBackoff {
		return p.MaxBackoff
	}
	return n
}

// temporary is implemented by provider errors that know whether a repeat
// could succeed, such as HTTP status errors.
type temporary interface {
	Temporary() bool
}

func retryable(err error) bool {
	var t temporary
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidInput):
		return false
	case errors.As(err, &t):
		return t.Temporary()
	default:
		return true
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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

// GenerationPolicy controls how hard the query path tries to get an answer
// from the LLM before returning a degraded result.
type GenerationPolicy struct {
	// Retry is applied to LLM calls unless FailFast is set.
	Retry RetryPolicy

	// FailFast makes a single LLM attempt.
	FailFast bool
}

// Policy returns the effective retry policy.
func (g GenerationPolicy) Policy() RetryPolicy {
	if g.FailFast {
		p := g.Retry
		p.MaxAttempts = 1
		return p
	}
	return g.Retry
}
