package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultRetries   = 5
	defaultUserAgent = "UCGInformation/1.0"
	maxBodyBytes     = 8 << 20
)

var (
	// ErrNotAcquired is returned when a fetch is attempted without a live session.
	ErrNotAcquired = errors.New("http session is not acquired")
	// ErrFetchFailed marks a single failed attempt (transport error or non-200 status).
	ErrFetchFailed = errors.New("fetch failed")
	// ErrRetriesExhausted is returned once every attempt of a retrying fetch failed.
	ErrRetriesExhausted = errors.New("fetch retries exhausted")
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tunes the shared session.
type Options struct {
	Timeout   time.Duration
	Pacing    time.Duration
	Retries   int
	UserAgent string
	Sleep     SleepFunc
}

// Client is the process-wide HTTP session shared by the scraper and the timeline fetcher.
type Client struct {
	opts Options

	mu   sync.Mutex
	http *http.Client
}

// New builds an un-acquired client; zero options fall back to defaults.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Pacing < 0 {
		opts.Pacing = 0
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	return &Client{opts: opts}
}

// Acquire lazily creates the shared session. Calling it again is a no-op.
func (c *Client) Acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.http != nil {
		return
	}
	c.http = &http.Client{Timeout: c.opts.Timeout}
}

// Release tears the session down; later fetches fail with ErrNotAcquired until re-acquired.
func (c *Client) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.http == nil {
		return
	}
	c.http.CloseIdleConnections()
	c.http = nil
}

// Pause applies the pacing delay that precedes every request.
func (c *Client) Pause(ctx context.Context) error {
	if c.opts.Pacing == 0 {
		return ctx.Err()
	}
	return c.opts.Sleep(ctx, c.opts.Pacing)
}

// Backoff sleeps through the configured SleepFunc.
func (c *Client) Backoff(ctx context.Context, d time.Duration) error {
	return c.opts.Sleep(ctx, d)
}

// Do sends req on the shared session. The caller owns the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	hc := c.http
	c.mu.Unlock()
	if hc == nil {
		return nil, ErrNotAcquired
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	return hc.Do(req)
}

// ResponseFunc observes every attempt that received an HTTP response, whatever its status.
type ResponseFunc func(ctx context.Context, url string, status int)

// FetchPage performs one paced GET and returns the body of a 200 response.
// Every other outcome is reported as ErrFetchFailed. observe may be nil.
func (c *Client) FetchPage(ctx context.Context, url string, observe ResponseFunc) ([]byte, error) {
	if err := c.Pause(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetchFailed, err)
	}

	resp, err := c.Do(req)
	if err != nil {
		if errors.Is(err, ErrNotAcquired) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if observe != nil {
		observe(ctx, url, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetchFailed, url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetchFailed, err)
	}
	return body, nil
}

// FetchPageWithRetry calls FetchPage up to retries times (the configured count when
// retries <= 0) and stops at the first success.
func (c *Client) FetchPageWithRetry(ctx context.Context, url string, retries int, observe ResponseFunc) ([]byte, error) {
	if retries <= 0 {
		retries = c.opts.Retries
	}

	policy := NewRetryPolicy[[]byte](retries, func(_ []byte, err error) bool {
		return Retryable(err)
	})
	body, err := Execute(ctx, policy, func(int) ([]byte, error) {
		return c.FetchPage(ctx, url, observe)
	})
	if err == nil {
		return body, nil
	}
	if !Retryable(err) {
		return nil, err
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, retries, err)
}

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
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
