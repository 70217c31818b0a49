package domain

import "time"

// ArticleCategory tags every relayed listing entry.
const ArticleCategory = "new_article"

// Article is a listing entry resolved to its page title.
type Article struct {
	URL   string
	Title string
}

// EmittedArticle is the persisted record of a relayed article URL.
type EmittedArticle struct {
	URL       string
	Title     string
	Category  string
	Service   string
	CreatedAt time.Time
}

// FetchMethod tags outbound request attempts in the audit trail.
type FetchMethod string

const (
	MethodScrape      FetchMethod = "scrape"
	MethodTimelineAPI FetchMethod = "timeline-api"
)

// FetchRecord is one audited request attempt.
type FetchRecord struct {
	TargetURL string
	Method    FetchMethod
	Service   string
	CreatedAt time.Time
}
