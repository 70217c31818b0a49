package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"UCGInformation/internal/domain"
)

type memRepository struct {
	mu        sync.Mutex
	fetches   []domain.FetchRecord
	posts     map[string]domain.EmittedPost
	postOrder []string
	articles  map[string]domain.EmittedArticle
	inserts   []string
}

func newMemRepository() *memRepository {
	return &memRepository{
		posts:    map[string]domain.EmittedPost{},
		articles: map[string]domain.EmittedArticle{},
	}
}

func (m *memRepository) RecordFetch(_ context.Context, url string, method domain.FetchMethod) error {
	return m.recordFetchAt(url, method, time.Now())
}

func (m *memRepository) recordFetchAt(url string, method domain.FetchMethod, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = append(m.fetches, domain.FetchRecord{TargetURL: url, Method: method, CreatedAt: at})
	return nil
}

func (m *memRepository) MostRecentFetchTime(_ context.Context, method domain.FetchMethod) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest time.Time
		ok     bool
	)
	for _, f := range m.fetches {
		if f.Method == method && (!ok || f.CreatedAt.After(latest)) {
			latest, ok = f.CreatedAt, true
		}
	}
	return latest, ok, nil
}

func (m *memRepository) HasEmittedPost(_ context.Context, postID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.posts[postID]
	return ok, nil
}

func (m *memRepository) RecordEmittedPost(_ context.Context, post domain.EmittedPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[post.PostID]; ok {
		return errors.New("duplicate tweet_id")
	}
	m.posts[post.PostID] = post
	m.postOrder = append(m.postOrder, post.PostID)
	return nil
}

func (m *memRepository) HasEmittedArticle(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.articles[url]
	return ok, nil
}

func (m *memRepository) RecordEmittedArticle(_ context.Context, article domain.EmittedArticle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[article.URL]; ok {
		return errors.New("duplicate sent_url")
	}
	m.articles[article.URL] = article
	m.inserts = append(m.inserts, article.URL)
	return nil
}

type sentMessage struct {
	dest domain.Destination
	text string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) SendText(_ context.Context, dest domain.Destination, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{dest: dest, text: text})
	return nil
}

type fakeTimeline struct {
	account string
	posts   []domain.Post
	calls   int
	repo    *memRepository
	at      func() time.Time
}

func (f *fakeTimeline) AccountID() string { return f.account }

func (f *fakeTimeline) FetchLatest(_ context.Context, n int) ([]domain.Post, error) {
	f.calls++
	if f.repo != nil {
		_ = f.repo.recordFetchAt("timeline/"+f.account, domain.MethodTimelineAPI, f.at())
	}
	if len(f.posts) > n {
		return f.posts[:n], nil
	}
	return f.posts, nil
}

type fakeArticles struct {
	links      []string
	listErr    error
	titles     map[string]string
	titleErr   map[string]error
	titleCalls map[string]int
}

func (f *fakeArticles) ListNewArticles(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.links, nil
}

func (f *fakeArticles) ResolveTitle(_ context.Context, url string) (string, error) {
	if f.titleCalls == nil {
		f.titleCalls = map[string]int{}
	}
	f.titleCalls[url]++
	if err := f.titleErr[url]; err != nil {
		return "", err
	}
	return f.titles[url], nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	finished int
	failed   int
	skipped  []string
	states   []string
}

func (m *recordingMetrics) Emitted(string, string) {}

func (m *recordingMetrics) Skipped(_, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped = append(m.skipped, reason)
}

func (m *recordingMetrics) CycleFinished(_ time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished++
	if failed {
		m.failed++
	}
}

func (m *recordingMetrics) SetState(state string, _ []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
}
