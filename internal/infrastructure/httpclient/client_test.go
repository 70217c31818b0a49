package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(retries int) (*Client, *[]time.Duration) {
	var slept []time.Duration
	c := New(Options{
		Pacing:  time.Second,
		Retries: retries,
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})
	return c, &slept
}

func TestFetchPageRequiresAcquire(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(1)
	_, err := c.FetchPage(context.Background(), "http://127.0.0.1:1/", nil)
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}

	c.Acquire()
	c.Acquire()
	c.Release()
	c.Release()
	if _, err := c.FetchPage(context.Background(), "http://127.0.0.1:1/", nil); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired after release, got %v", err)
	}
}

func TestFetchPagePacesAndReturnsBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	c, slept := newTestClient(1)
	c.Acquire()
	defer c.Release()

	body, err := c.FetchPage(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}
	if string(body) != "<html></html>" {
		t.Fatalf("unexpected body: %q", body)
	}
	if len(*slept) != 1 || (*slept)[0] != time.Second {
		t.Fatalf("expected one 1s pacing delay, got %v", *slept)
	}
}

func TestFetchPageNon200(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c, _ := newTestClient(1)
	c.Acquire()
	defer c.Release()

	if _, err := c.FetchPage(context.Background(), server.URL, nil); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestFetchPageWithRetryShortCircuits(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c, _ := newTestClient(5)
	c.Acquire()
	defer c.Release()

	body, err := c.FetchPageWithRetry(context.Background(), server.URL, 0, nil)
	if err != nil {
		t.Fatalf("FetchPageWithRetry error: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("unexpected body: %q", body)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestFetchPageWithRetryExhausted(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, _ := newTestClient(5)
	c.Acquire()
	defer c.Release()

	_, err := c.FetchPageWithRetry(context.Background(), server.URL, 4, nil)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if errors.Is(err, ErrFetchFailed) {
		t.Fatalf("exhausted error must be distinct from the per-call error")
	}
	if hits.Load() != 4 {
		t.Fatalf("expected 4 attempts, got %d", hits.Load())
	}
}

func TestFetchPageWithRetryObservesEveryResponse(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c, slept := newTestClient(5)
	c.Acquire()
	defer c.Release()

	var statuses []int
	_, err := c.FetchPageWithRetry(context.Background(), server.URL, 0, func(_ context.Context, url string, status int) {
		if url != server.URL {
			t.Errorf("unexpected url %q", url)
		}
		statuses = append(statuses, status)
	})
	if err != nil {
		t.Fatalf("FetchPageWithRetry error: %v", err)
	}
	if len(statuses) != 2 || statuses[0] != http.StatusServiceUnavailable || statuses[1] != http.StatusOK {
		t.Fatalf("expected [503 200], got %v", statuses)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected a pacing delay before each attempt, got %v", *slept)
	}
}

func TestFetchPageWithRetryStopsWhenReleased(t *testing.T) {
	t.Parallel()

	c, slept := newTestClient(5)
	_, err := c.FetchPageWithRetry(context.Background(), "http://127.0.0.1:1/", 0, nil)
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("a missing session must not be retried")
	}
	if len(*slept) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(*slept))
	}
}

func TestFetchPageWithRetryStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var attempts int
	c := New(Options{
		Pacing: time.Second,
		Sleep: func(context.Context, time.Duration) error {
			attempts++
			cancel()
			return context.Canceled
		},
	})
	c.Acquire()
	defer c.Release()

	_, err := c.FetchPageWithRetry(ctx, "http://127.0.0.1:1/", 3, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected one attempt, got %d", attempts)
	}
}
