package httpclient

import (
	"context"
	"errors"
	"testing"
)

func TestExecuteNumbersAttemptsAndStopsOnSuccess(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy[string](5, func(_ string, err error) bool { return Retryable(err) })

	var seen []int
	got, err := Execute(context.Background(), policy, func(attempt int) (string, error) {
		seen = append(seen, attempt)
		if attempt < 3 {
			return "", ErrFetchFailed
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if got != "done" {
		t.Fatalf("unexpected result %q", got)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("unexpected attempts %v", seen)
	}
}

func TestExecuteReturnsLastFailure(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy[int](0, func(_ int, err error) bool { return Retryable(err) })

	calls := 0
	_, err := Execute(context.Background(), policy, func(int) (int, error) {
		calls++
		return 0, ErrFetchFailed
	})
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected the last attempt error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("a non-positive bound means a single attempt, got %d", calls)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	cases := map[error]bool{
		nil:                      false,
		ErrFetchFailed:           true,
		ErrNotAcquired:           false,
		context.Canceled:         false,
		context.DeadlineExceeded: false,
	}
	for err, want := range cases {
		if got := Retryable(err); got != want {
			t.Errorf("Retryable(%v) = %v, want %v", err, got, want)
		}
	}
}
