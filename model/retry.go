package model

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/hupe1980/agentflow/core"
)

// RetryPolicy configures retry behavior with exponential backoff for the
// model boundary.
type RetryPolicy struct {
	MaxRetries        int           // retry attempts not counting the initial call
	BaseDelay         time.Duration // delay before the first retry
	MaxDelay          time.Duration // upper bound for a single delay
	BackoffMultiplier float64       // exponential backoff factor
	Jitter            bool          // randomise delays by +/-50%
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns two retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay for retry n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 {
		delay = math.Min(delay, float64(p.MaxDelay))
	}
	if p.Jitter {
		delay *= 0.5 + rand.Float64() // #nosec G404 -- jitter only
	}
	return time.Duration(delay)
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether an error from the model boundary may be retried.
// Permanent errors and an exhausted call budget are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	return !errors.Is(err, core.ErrBudgetExhausted)
}

// Retry executes fn with the configured retry policy and returns the result
// plus the number of attempts made. Cancellation of ctx stops retrying.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	attempts := 1
	result, err := fn(ctx)
	if err == nil {
		return result, attempts, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, attempts, ctx.Err()
		}
		if !IsRetryable(err) {
			return zero, attempts, err
		}

		delay := policy.Delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempts, ctx.Err()
		case <-timer.C:
		}

		attempts++
		result, err = fn(ctx)
		if err == nil {
			return result, attempts, nil
		}
	}

	return zero, attempts, err
}
