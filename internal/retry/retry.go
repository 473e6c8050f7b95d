// Package retry runs a single operation under a bounded exponential
// backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/textgen/internal/backoff"
)

// DefaultMaxRetries is the number of retries after the first attempt.
const DefaultMaxRetries = 2

// ErrCancelled is matched by every CancelledError.
var ErrCancelled = errors.New("retry cancelled")

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// Policy computes the wait between attempts.
	Policy backoff.Policy
	// OnRetry, if set, is called after a failed attempt and before waiting.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// FromMaxRetries builds a config allowing maxRetries retries after the
// first attempt. Negative values mean no retries.
func FromMaxRetries(maxRetries int) Config {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return Config{
		MaxAttempts: maxRetries + 1,
		Policy:      backoff.Generation(),
	}
}

// DefaultConfig allows DefaultMaxRetries retries.
func DefaultConfig() Config {
	return FromMaxRetries(DefaultMaxRetries)
}

// Result contains the outcome of a retry operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the last error (nil if successful).
	Err error
	// Duration is the total time spent retrying.
	Duration time.Duration
}

// CancelledError reports that the context ended before the operation
// succeeded. Last holds the most recent attempt error, if any.
type CancelledError struct {
	Attempts int
	Cause    error
	Last     error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("retry cancelled after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, ErrCancelled).
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// Do executes op until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done.
//
// When attempts run out Result.Err is the error of the last attempt,
// unwrapped from any Permanent marker. Cancellation always yields a
// *CancelledError.
func Do(ctx context.Context, config Config, op func(ctx context.Context) error) Result {
	start := time.Now()
	result := Result{}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	policy := config.Policy.WithDefaults()

	var last error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.Err = &CancelledError{Attempts: result.Attempts, Cause: err, Last: last}
			break
		}

		result.Attempts = attempt
		err := op(ctx)
		if err == nil {
			result.Err = nil
			break
		}
		last = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Err = &CancelledError{Attempts: attempt, Cause: ctxErr, Last: err}
			break
		}

		result.Err = unwrapPermanent(err)
		if !IsRetryable(err) || attempt >= config.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, delay, err)
		}
		if sleepErr := backoff.Sleep(ctx, delay); sleepErr != nil {
			result.Err = &CancelledError{Attempts: attempt, Cause: sleepErr, Last: err}
			break
		}
	}

	result.Duration = time.Since(start)
	return result
}

// DoWithValue executes an operation that returns a value with retries.
func DoWithValue[T any](ctx context.Context, config Config, op func(ctx context.Context) (T, error)) (T, Result) {
	var value T
	result := Do(ctx, config, func(ctx context.Context) error {
		var err error
		value, err = op(ctx)
		return err
	})
	if result.Err != nil {
		var zero T
		return zero, result
	}
	return value, result
}

// PermanentError is an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error to indicate it should not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is permanent (shouldn't retry).
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// retryable is implemented by errors that classify themselves, such as
// provider errors.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

func unwrapPermanent(err error) error {
	var permanent *PermanentError
	if errors.As(err, &permanent) && permanent == err {
		return permanent.Err
	}
	return err
}
