package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"UCGInformation/internal/domain"
	"UCGInformation/internal/infrastructure/httpclient"
	"UCGInformation/internal/ports"
)

const (
	// DefaultBaseURL is the v2 API root.
	DefaultBaseURL = "https://api.twitter.com/2"

	defaultAttempts      = 5
	defaultRateLimitStep = 200 * time.Second
	userAgent            = "v2UserTweetsPython"
)

// Config describes one account feed.
type Config struct {
	BaseURL       string
	AccountID     string
	BearerToken   string
	Attempts      int
	RateLimitStep time.Duration
}

// Client polls a single account timeline.
type Client struct {
	cfg      Config
	http     *httpclient.Client
	recorder ports.FetchRecorder
	logger   *slog.Logger
}

var _ ports.TimelineSource = (*Client)(nil)

type timelineResponse struct {
	Data []domain.Post `json:"data"`
}

// NewClient wires the shared session with feed credentials.
func NewClient(cfg Config, hc *httpclient.Client, recorder ports.FetchRecorder, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.RateLimitStep <= 0 {
		cfg.RateLimitStep = defaultRateLimitStep
	}
	return &Client{cfg: cfg, http: hc, recorder: recorder, logger: log}
}

// AccountID returns the polled account identifier.
func (c *Client) AccountID() string {
	return c.cfg.AccountID
}

// FetchLatest returns up to n posts in API order (newest first). An unset account
// disables the feed. Exhausted attempts yield an empty slice, not an error; only
// context cancellation and a missing session are reported.
func (c *Client) FetchLatest(ctx context.Context, n int) ([]domain.Post, error) {
	if c.cfg.AccountID == "" {
		return []domain.Post{}, nil
	}

	endpoint, err := c.endpoint(n)
	if err != nil {
		return nil, err
	}

	policy := httpclient.NewRetryPolicy[attemptResult](c.cfg.Attempts, func(res attemptResult, err error) bool {
		if err != nil {
			return httpclient.Retryable(err)
		}
		return res.status != http.StatusOK
	})

	res, err := httpclient.Execute(ctx, policy, func(attempt int) (attemptResult, error) {
		return c.attempt(ctx, endpoint, attempt)
	})
	if err != nil && !httpclient.Retryable(err) {
		return nil, err
	}
	if err == nil && res.status == http.StatusOK {
		return res.posts, nil
	}

	c.warn("timeline attempts exhausted", "account", c.cfg.AccountID, "attempts", c.cfg.Attempts)
	return []domain.Post{}, nil
}

type attemptResult struct {
	posts  []domain.Post
	status int
}

// attempt paces, sends one request and, on 429, waits RateLimitStep times the attempt number.
func (c *Client) attempt(ctx context.Context, endpoint string, n int) (attemptResult, error) {
	if err := c.http.Pause(ctx); err != nil {
		return attemptResult{}, err
	}

	posts, status, err := c.fetchOnce(ctx, endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return attemptResult{}, ctx.Err()
		}
		if httpclient.Retryable(err) {
			c.warn("timeline request failed", "attempt", n, "error", err)
		}
		return attemptResult{}, err
	}

	if status == http.StatusTooManyRequests {
		wait := c.cfg.RateLimitStep * time.Duration(n)
		c.warn("timeline rate limited", "attempt", n, "wait", wait)
		if err := c.http.Backoff(ctx, wait); err != nil {
			return attemptResult{}, err
		}
	}
	return attemptResult{posts: posts, status: status}, nil
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) ([]domain.Post, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	c.record(ctx, endpoint)

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode != http.StatusTooManyRequests {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			c.warn("timeline returned error status", "status", resp.Status, "body", strings.TrimSpace(string(payload)))
		}
		return nil, resp.StatusCode, nil
	}

	var decoded timelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode timeline: %w", err)
	}
	if decoded.Data == nil {
		decoded.Data = []domain.Post{}
	}
	return decoded.Data, resp.StatusCode, nil
}

func (c *Client) endpoint(n int) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(c.cfg.BaseURL, "/") + "/users/" + url.PathEscape(c.cfg.AccountID) + "/tweets")
	if err != nil {
		return "", fmt.Errorf("invalid timeline url: %w", err)
	}
	q := u.Query()
	q.Set("max_results", strconv.Itoa(n))
	q.Set("tweet.fields", "text")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) record(ctx context.Context, target string) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordFetch(ctx, target, domain.MethodTimelineAPI); err != nil {
		c.warn("record fetch failed", "url", target, "error", err)
	}
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
