package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"UCGInformation/internal/domain"
	"UCGInformation/internal/infrastructure/httpclient"
	"UCGInformation/internal/ports"
)

const (
	defaultTimelineInterval = 15 * time.Minute
	defaultMaxResults       = 5
	defaultTitleAttempts    = 5

	kindPost    = "post"
	kindArticle = "article"
)

// ErrTitleUnresolved is returned when an article title could not be resolved within the attempt cap.
var ErrTitleUnresolved = errors.New("article title unresolved")

// State is the orchestrator phase within one cycle.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateFiltering  State = "filtering"
	StateDelivering State = "delivering"
)

var allStates = []string{string(StateIdle), string(StateFetching), string(StateFiltering), string(StateDelivering)}

// RelayDeps wires the driven adapters into the relay.
type RelayDeps struct {
	Articles    ports.ArticleSource
	Official    ports.TimelineSource
	Environment ports.TimelineSource
	Repository  ports.Repository
	Notifier    ports.Notifier
	Metrics     ports.RelayMetrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// RelayOptions tunes the cadence rules of one cycle.
type RelayOptions struct {
	TimelineInterval time.Duration
	MaxResults       int
	TitleAttempts    int
}

// Relay fetches candidates, filters them against emission history and delivers the rest.
type Relay struct {
	articles    ports.ArticleSource
	official    ports.TimelineSource
	environment ports.TimelineSource
	repository  ports.Repository
	notifier    ports.Notifier
	metrics     ports.RelayMetrics
	logger      *slog.Logger
	now         func() time.Time
	opts        RelayOptions

	mu    sync.Mutex
	state State
}

type postCandidate struct {
	feed      domain.FeedKind
	accountID string
	post      domain.Post
}

type cycleBatch struct {
	posts    []postCandidate
	articles []string
}

// NewRelay constructs the orchestrator. Missing options fall back to production defaults.
func NewRelay(deps RelayDeps, opts RelayOptions) *Relay {
	if opts.TimelineInterval <= 0 {
		opts.TimelineInterval = defaultTimelineInterval
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	if opts.TitleAttempts <= 0 {
		opts.TitleAttempts = defaultTitleAttempts
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}

	return &Relay{
		articles:    deps.Articles,
		official:    deps.Official,
		environment: deps.Environment,
		repository:  deps.Repository,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Now,
		opts:        opts,
		state:       StateIdle,
	}
}

// State reports the current phase.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Relay) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	r.metrics.SetState(string(s), allStates)
}

// RunCycle performs one fetch, filter, deliver pass. A panic is counted as a failed
// cycle and then propagated to the caller.
func (r *Relay) RunCycle(ctx context.Context) (err error) {
	if r.repository == nil || r.notifier == nil {
		return errors.New("relay requires a repository and a notifier")
	}

	started := r.now()
	defer func() {
		rec := recover()
		r.setState(StateIdle)
		r.metrics.CycleFinished(r.now().Sub(started), err != nil || rec != nil)
		if rec != nil {
			panic(rec)
		}
	}()

	r.setState(StateFetching)
	batch, err := r.fetch(ctx)
	if err != nil {
		return err
	}

	r.setState(StateFiltering)
	batch, err = r.filter(ctx, batch)
	if err != nil {
		return err
	}

	r.setState(StateDelivering)
	return r.deliver(ctx, batch)
}

// EligibleForTimelineFetch reports whether the timeline interval has elapsed since the last API attempt.
func (r *Relay) EligibleForTimelineFetch(ctx context.Context, now time.Time) (bool, error) {
	last, ok, err := r.repository.MostRecentFetchTime(ctx, domain.MethodTimelineAPI)
	if err != nil {
		return false, fmt.Errorf("latest timeline fetch: %w", err)
	}
	if !ok {
		return true, nil
	}
	return now.Sub(last) >= r.opts.TimelineInterval, nil
}

func (r *Relay) fetch(ctx context.Context) (cycleBatch, error) {
	var batch cycleBatch

	eligible, err := r.EligibleForTimelineFetch(ctx, r.now())
	if err != nil {
		return batch, err
	}
	if eligible {
		for _, feed := range []struct {
			kind   domain.FeedKind
			source ports.TimelineSource
		}{
			{domain.FeedOfficial, r.official},
			{domain.FeedEnvironment, r.environment},
		} {
			if feed.source == nil {
				continue
			}
			posts, err := feed.source.FetchLatest(ctx, r.opts.MaxResults)
			if err != nil {
				return batch, fmt.Errorf("fetch %s timeline: %w", feed.kind, err)
			}
			// The API answers newest first; deliver oldest first.
			for i := len(posts) - 1; i >= 0; i-- {
				batch.posts = append(batch.posts, postCandidate{
					feed:      feed.kind,
					accountID: feed.source.AccountID(),
					post:      posts[i],
				})
			}
		}
	} else {
		r.logger.Debug("timeline fetch throttled")
	}

	if r.articles != nil {
		links, err := r.articles.ListNewArticles(ctx)
		switch {
		case errors.Is(err, httpclient.ErrRetriesExhausted):
			r.logger.Warn("listing page unreachable", "error", err)
		case err != nil:
			return batch, fmt.Errorf("list articles: %w", err)
		default:
			batch.articles = links
		}
	}

	r.logger.Debug("fetched candidates", "posts", len(batch.posts), "articles", len(batch.articles))
	return batch, nil
}

func (r *Relay) filter(ctx context.Context, batch cycleBatch) (cycleBatch, error) {
	var out cycleBatch

	seenPosts := make(map[string]struct{}, len(batch.posts))
	for _, c := range batch.posts {
		if _, dup := seenPosts[c.post.ID]; dup {
			continue
		}
		seenPosts[c.post.ID] = struct{}{}

		emitted, err := r.repository.HasEmittedPost(ctx, c.post.ID)
		if err != nil {
			return out, fmt.Errorf("check post %s: %w", c.post.ID, err)
		}
		if !emitted {
			out.posts = append(out.posts, c)
		}
	}

	seenArticles := make(map[string]struct{}, len(batch.articles))
	for _, link := range batch.articles {
		if _, dup := seenArticles[link]; dup {
			continue
		}
		seenArticles[link] = struct{}{}

		emitted, err := r.repository.HasEmittedArticle(ctx, link)
		if err != nil {
			return out, fmt.Errorf("check article %s: %w", link, err)
		}
		if !emitted {
			out.articles = append(out.articles, link)
		}
	}

	return out, nil
}

func (r *Relay) deliver(ctx context.Context, batch cycleBatch) error {
	for _, c := range batch.posts {
		dest := domain.RoutePost(c.feed, c.post.Text)
		record := domain.NewEmittedPost(c.accountID, c.post)

		if err := r.notifier.SendText(ctx, dest, record.URL); err != nil {
			return fmt.Errorf("send post %s: %w", c.post.ID, err)
		}
		if err := r.repository.RecordEmittedPost(ctx, record); err != nil {
			return fmt.Errorf("record post %s: %w", c.post.ID, err)
		}
		r.metrics.Emitted(kindPost, string(dest))
		r.logger.Info("post relayed", "post_id", c.post.ID, "destination", dest, "reshare", record.IsReshare)
	}

	for _, link := range batch.articles {
		title, err := r.resolveTitle(ctx, link)
		if errors.Is(err, ErrTitleUnresolved) {
			r.metrics.Skipped(kindArticle, "title_unresolved")
			r.logger.Warn("article skipped until next cycle", "url", link, "error", err)
			continue
		}
		if err != nil {
			return err
		}

		if err := r.notifier.SendText(ctx, domain.DestinationOfficialInfo, link); err != nil {
			return fmt.Errorf("send article %s: %w", link, err)
		}
		err = r.repository.RecordEmittedArticle(ctx, domain.EmittedArticle{
			URL:      link,
			Title:    title,
			Category: domain.ArticleCategory,
		})
		if err != nil {
			return fmt.Errorf("record article %s: %w", link, err)
		}
		r.metrics.Emitted(kindArticle, string(domain.DestinationOfficialInfo))
		r.logger.Info("article relayed", "url", link, "title", title)
	}

	return nil
}

func (r *Relay) resolveTitle(ctx context.Context, link string) (string, error) {
	policy := httpclient.NewRetryPolicy[string](r.opts.TitleAttempts, func(_ string, err error) bool {
		return httpclient.Retryable(err)
	})
	title, err := httpclient.Execute(ctx, policy, func(int) (string, error) {
		return r.articles.ResolveTitle(ctx, link)
	})
	if err == nil {
		return title, nil
	}
	if !httpclient.Retryable(err) {
		return "", err
	}
	return "", fmt.Errorf("%w after %d attempts: %v", ErrTitleUnresolved, r.opts.TitleAttempts, err)
}

type noopMetrics struct{}

func (noopMetrics) Emitted(string, string) {}
func (noopMetrics) Skipped(string, string) {}
func (noopMetrics) CycleFinished(time.Duration, bool) {}
func (noopMetrics) SetState(string, []string) {}
