package strava

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how long a page request keeps trying after the provider
// asks it to slow down.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultRetryPolicy backs off from 2s to at most one minute. The provider's short
// rate-limit window is 15 minutes, so anything beyond that belongs to the next sweep.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     time.Minute,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// RetryableError marks a failure worth another attempt. RetryAfter carries the
// provider's hint when it sent one.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err, or anything it wraps, is a *RetryableError.
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// Delay returns the wait before retry number n, counting from zero. A positive
// hint replaces the exponential schedule and is never jittered. Both are capped
// at MaxBackoff.
func (p RetryPolicy) Delay(n int, hint time.Duration) time.Duration {
	if hint > 0 {
		if p.MaxBackoff > 0 {
			return min(hint, p.MaxBackoff)
		}
		return hint
	}

	d := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(n))
	if p.MaxBackoff > 0 {
		d = math.Min(d, float64(p.MaxBackoff))
	}
	// +/-10% so many users hitting the limit at once do not retry in lockstep.
	if p.Jitter {
		d += d * 0.1 * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, fails with a non-retryable error, or MaxRetries
// retries have been spent. fn receives the attempt number, starting at 1.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt > p.MaxRetries {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		var retryable *RetryableError
		errors.As(err, &retryable)

		timer := time.NewTimer(p.Delay(attempt-1, retryable.RetryAfter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
