// Package retry runs an operation with bounded attempts and exponential
// backoff with jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. Later waits double.
	BaseDelay time.Duration

	// MaxDelay caps the wait before jitter is applied.
	MaxDelay time.Duration

	// Jitter is the maximum deviation as a fraction of the wait, in [0,1].
	Jitter float64

	// Retryable decides whether an error may be retried.
	// Nil means DefaultRetryable.
	Retryable func(error) bool

	// OnFailure, if set, is called after every failed attempt that was not
	// caused by context cancellation.
	OnFailure func(Failure)
}

// Failure describes one failed attempt.
type Failure struct {
	Attempt     int
	MaxAttempts int
	Err         error
	Retryable   bool
	Delay       time.Duration // wait before the next attempt, 0 if none follows
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay must be >= 0, got %v", p.BaseDelay)
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay %v is below base delay %v", p.MaxDelay, p.BaseDelay)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("jitter must be within [0,1], got %v", p.Jitter)
	}
	return nil
}

// Error is returned once an operation has failed for good.
type Error struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed after %d attempt(s) in %v: %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// DefaultRetryable retries everything except permanent and context errors.
func DefaultRetryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * 2^(attempt-1), capped at MaxDelay, then +/- Jitter.
func Delay(p Policy, attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}

	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*p.Jitter
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns a non-retryable error, the context
// ends, or MaxAttempts is reached. Failures are returned as *Error carrying
// the attempt count and elapsed time.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T

	if err := p.Validate(); err != nil {
		return zero, Permanent(fmt.Errorf("invalid retry policy: %w", err))
	}

	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	start := time.Now()
	fail := func(attempts int, err error) (T, error) {
		return zero, &Error{Attempts: attempts, Elapsed: time.Since(start), Err: err}
	}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail(attempt-1, err)
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}

		// Cancellation is not a failure of the operation itself
		if ctx.Err() != nil {
			return fail(attempt, err)
		}

		canRetry := retryable(err)
		var wait time.Duration
		if canRetry && attempt < p.MaxAttempts {
			wait = Delay(p, attempt)
		}

		if p.OnFailure != nil {
			p.OnFailure(Failure{
				Attempt:     attempt,
				MaxAttempts: p.MaxAttempts,
				Err:         err,
				Retryable:   canRetry,
				Delay:       wait,
			})
		}

		if !canRetry || attempt == p.MaxAttempts {
			return fail(attempt, err)
		}

		if err := sleep(ctx, wait); err != nil {
			return fail(attempt, err)
		}
	}

	// Unreachable: the loop always returns on its final attempt
	return fail(p.MaxAttempts, errors.New("retry attempts exhausted"))
}

func sleep(ctx context.Context, d time.Duration) error {
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
