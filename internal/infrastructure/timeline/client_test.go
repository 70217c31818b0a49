package timeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"UCGInformation/internal/domain"
	"UCGInformation/internal/infrastructure/httpclient"
)

type countingRecorder struct {
	mu      sync.Mutex
	methods []domain.FetchMethod
}

func (r *countingRecorder) RecordFetch(_ context.Context, _ string, method domain.FetchMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods = append(r.methods, method)
	return nil
}

func newSession(t *testing.T) (*httpclient.Client, *[]time.Duration) {
	t.Helper()
	var mu sync.Mutex
	var slept []time.Duration
	hc := httpclient.New(httpclient.Options{
		Pacing: time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			mu.Lock()
			defer mu.Unlock()
			slept = append(slept, d)
			return nil
		},
	})
	hc.Acquire()
	t.Cleanup(hc.Release)
	return hc, &slept
}

func TestFetchLatestDisabledWithoutAccount(t *testing.T) {
	t.Parallel()

	hc, slept := newSession(t)
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, hc, nil, nil)

	posts, err := c.FetchLatest(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Empty(t, *slept)
}

func TestFetchLatestRequestShape(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/12345/tweets", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("max_results"))
		assert.Equal(t, "text", r.URL.Query().Get("tweet.fields"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"id":"3","text":"newest"},{"id":"2","text":"older"}]}`))
	}))
	defer server.Close()

	hc, _ := newSession(t)
	rec := &countingRecorder{}
	c := NewClient(Config{BaseURL: server.URL, AccountID: "12345", BearerToken: "secret"}, hc, rec, nil)

	posts, err := c.FetchLatest(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "3", posts[0].ID)
	assert.Equal(t, "2", posts[1].ID)
	assert.Equal(t, []domain.FetchMethod{domain.MethodTimelineAPI}, rec.methods)
}

func TestFetchLatestMissingDataKey(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meta":{"result_count":0}}`))
	}))
	defer server.Close()

	hc, _ := newSession(t)
	c := NewClient(Config{BaseURL: server.URL, AccountID: "1"}, hc, nil, nil)

	posts, err := c.FetchLatest(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
}

func TestFetchLatestBacksOffOnRateLimit(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"9","text":"b"},{"id":"8","text":"a"}]}`))
	}))
	defer server.Close()

	hc, slept := newSession(t)
	rec := &countingRecorder{}
	c := NewClient(Config{BaseURL: server.URL, AccountID: "1"}, hc, rec, nil)

	posts, err := c.FetchLatest(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "9", posts[0].ID, "API order must be preserved")

	assert.Equal(t, []time.Duration{time.Second, 200 * time.Second, time.Second}, *slept)
	assert.Len(t, rec.methods, 2)
}

func TestFetchLatestExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	hc, _ := newSession(t)
	c := NewClient(Config{BaseURL: server.URL, AccountID: "1"}, hc, nil, nil)

	posts, err := c.FetchLatest(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, int32(5), hits.Load())
}

func TestFetchLatestScalesRateLimitBackoff(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	hc, slept := newSession(t)
	c := NewClient(Config{BaseURL: server.URL, AccountID: "1", Attempts: 3, RateLimitStep: time.Minute}, hc, nil, nil)

	posts, err := c.FetchLatest(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, []time.Duration{
		time.Second, time.Minute,
		time.Second, 2 * time.Minute,
		time.Second, 3 * time.Minute,
	}, *slept)
}

func TestFetchLatestStopsWithoutSession(t *testing.T) {
	t.Parallel()

	var slept int
	hc := httpclient.New(httpclient.Options{
		Pacing: time.Second,
		Sleep: func(context.Context, time.Duration) error {
			slept++
			return nil
		},
	})
	rec := &countingRecorder{}
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", AccountID: "1"}, hc, rec, nil)

	_, err := c.FetchLatest(context.Background(), 5)
	require.ErrorIs(t, err, httpclient.ErrNotAcquired)
	assert.Equal(t, 1, slept, "a missing session must not be retried")
	assert.Empty(t, rec.methods)
}
