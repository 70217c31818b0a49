package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"UCGInformation/internal/domain"
	"UCGInformation/internal/infrastructure/httpclient"
	"UCGInformation/internal/ports"
)

const (
	// DefaultListingURL is the official news list page.
	DefaultListingURL = "https://ultraman-cardgame.com/page/jp/news/news-list"

	contentBlockSelector = "div.content"
)

// ErrNoTitle is returned when a fetched page carries no title element.
var ErrNoTitle = errors.New("page has no title")

// NewsScanner extracts article links from the news listing and resolves their titles.
type NewsScanner struct {
	client     *httpclient.Client
	recorder   ports.FetchRecorder
	listingURL string
	logger     *slog.Logger
}

var _ ports.ArticleSource = (*NewsScanner)(nil)

// NewNewsScanner wires the shared session; listingURL defaults to DefaultListingURL.
func NewNewsScanner(client *httpclient.Client, recorder ports.FetchRecorder, listingURL string, log *slog.Logger) *NewsScanner {
	if listingURL == "" {
		listingURL = DefaultListingURL
	}
	return &NewsScanner{
		client:     client,
		recorder:   recorder,
		listingURL: listingURL,
		logger:     log,
	}
}

// ListNewArticles returns the first link of every content block in document order.
// A malformed page yields an empty list; an unreachable page yields an error
// wrapping httpclient.ErrRetriesExhausted.
func (s *NewsScanner) ListNewArticles(ctx context.Context) ([]string, error) {
	body, err := s.client.FetchPageWithRetry(ctx, s.listingURL, 0, s.record)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.debug("listing parse failed", "error", err)
		return []string{}, nil
	}

	return extractLinks(doc, s.listingURL), nil
}

// ResolveTitle fetches url and returns its trimmed <title> text.
func (s *NewsScanner) ResolveTitle(ctx context.Context, pageURL string) (string, error) {
	body, err := s.client.FetchPageWithRetry(ctx, pageURL, 0, s.record)
	if err != nil {
		return "", fmt.Errorf("fetch article: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}

	title := doc.Find("title").First()
	if title.Length() == 0 {
		return "", fmt.Errorf("%s: %w", pageURL, ErrNoTitle)
	}
	return strings.TrimSpace(title.Text()), nil
}

func extractLinks(doc *goquery.Document, base string) []string {
	links := make([]string, 0)
	doc.Find(contentBlockSelector).Each(func(_ int, block *goquery.Selection) {
		href, ok := block.Find("a").First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		links = append(links, absoluteURL(base, href))
	})
	return links
}

func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// record writes one audit row per attempt that got a response, non-200 included.
func (s *NewsScanner) record(ctx context.Context, target string, status int) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordFetch(ctx, target, domain.MethodScrape); err != nil && s.logger != nil {
		s.logger.Warn("record fetch failed", "url", target, "status", status, "error", err)
	}
}

func (s *NewsScanner) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
