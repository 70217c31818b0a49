package httpclient

import (
	"context"
	"errors"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// NewRetryPolicy bounds a call to attempts executions and retries while retryIf holds.
// The policy itself never waits: pacing and rate-limit sleeps run inside the executed
// function so they go through the session's SleepFunc. On exhaustion the last result
// and error are returned as-is.
func NewRetryPolicy[R any](attempts int, retryIf func(R, error) bool) retrypolicy.RetryPolicy[R] {
	if attempts < 1 {
		attempts = 1
	}
	return retrypolicy.NewBuilder[R]().
		WithMaxRetries(attempts - 1).
		HandleIf(retryIf).
		ReturnLastFailure().
		Build()
}

// Execute runs fn under policy, handing it the 1-based attempt number.
func Execute[R any](ctx context.Context, policy retrypolicy.RetryPolicy[R], fn func(attempt int) (R, error)) (R, error) {
	attempt := 0
	return failsafe.With[R](policy).WithContext(ctx).Get(func() (R, error) {
		attempt++
		return fn(attempt)
	})
}

// Retryable reports whether err is worth another attempt. Context cancellation and a
// released session end the loop immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotAcquired) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
