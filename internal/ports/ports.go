package ports

import (
	"context"
	"time"

	"UCGInformation/internal/domain"
)

// ArticleSource lists candidate article links and resolves their titles.
type ArticleSource interface {
	ListNewArticles(ctx context.Context) ([]string, error)
	ResolveTitle(ctx context.Context, url string) (string, error)
}

// TimelineSource returns the latest posts of a social account, newest first.
type TimelineSource interface {
	FetchLatest(ctx context.Context, n int) ([]domain.Post, error)
	AccountID() string
}

// FetchRecorder appends request attempts to the audit trail.
type FetchRecorder interface {
	RecordFetch(ctx context.Context, url string, method domain.FetchMethod) error
}

// Repository persists emission history for deduplication.
type Repository interface {
	FetchRecorder
	MostRecentFetchTime(ctx context.Context, method domain.FetchMethod) (time.Time, bool, error)
	HasEmittedPost(ctx context.Context, postID string) (bool, error)
	RecordEmittedPost(ctx context.Context, post domain.EmittedPost) error
	HasEmittedArticle(ctx context.Context, url string) (bool, error)
	RecordEmittedArticle(ctx context.Context, article domain.EmittedArticle) error
}

// Notifier delivers plain text to a logical destination.
type Notifier interface {
	SendText(ctx context.Context, dest domain.Destination, text string) error
}

// Scheduler controls when the relay cycle executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// ChannelReplier answers on a raw chat channel, used by the command surface.
type ChannelReplier interface {
	SendToChannel(ctx context.Context, channelID, text string) error
}

// RelayMetrics receives relay instrumentation events.
type RelayMetrics interface {
	Emitted(kind, destination string)
	Skipped(kind, reason string)
	CycleFinished(d time.Duration, failed bool)
	SetState(state string, all []string)
}
