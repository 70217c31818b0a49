package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"UCGInformation/internal/domain"
	"UCGInformation/internal/ports"
)

const (
	crawlsTable   = "crawls"
	tweetsTable   = "tweets"
	sentURLsTable = "sent_urls"

	maxOpenConns = 5
	maxIdleConns = 1
)

//go:embed schema.sql
var schemaDDL string

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists the audit trail and emission history.
// Every call is a single auto-committed statement.
type PostgresRepository struct {
	db      *sql.DB
	service string
}

var _ ports.Repository = (*PostgresRepository)(nil)

// Open connects to Postgres with the bounded pool the relay expects.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewPostgresRepository scopes all reads and writes to service.
func NewPostgresRepository(db *sql.DB, service string) *PostgresRepository {
	return &PostgresRepository{db: db, service: service}
}

// EnsureSchema creates missing tables; existing ones are left untouched.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordFetch appends an attempt to the audit trail.
func (r *PostgresRepository) RecordFetch(ctx context.Context, url string, method domain.FetchMethod) error {
	query, args, err := psql.Insert(crawlsTable).
		Columns("target_url", "method", "service").
		Values(url, string(method), r.service).
		ToSql()
	if err != nil {
		return fmt.Errorf("build crawl insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert crawl: %w", err)
	}
	return nil
}

// MostRecentFetchTime returns the newest attempt time for method; ok is false when none exists.
func (r *PostgresRepository) MostRecentFetchTime(ctx context.Context, method domain.FetchMethod) (time.Time, bool, error) {
	query, args, err := psql.Select("created_at").
		From(crawlsTable).
		Where(sq.Eq{"method": string(method), "service": r.service}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build crawl select: %w", err)
	}

	var createdAt time.Time
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("select latest crawl: %w", err)
	}
	return createdAt, true, nil
}

// HasEmittedPost reports whether postID was relayed before.
func (r *PostgresRepository) HasEmittedPost(ctx context.Context, postID string) (bool, error) {
	return r.exists(ctx, psql.Select("1").From(tweetsTable).Where(sq.Eq{"tweet_id": postID}).Limit(1))
}

// RecordEmittedPost stores a relayed post; a duplicate id is ignored.
func (r *PostgresRepository) RecordEmittedPost(ctx context.Context, post domain.EmittedPost) error {
	query, args, err := psql.Insert(tweetsTable).
		Columns("text", "tweet_id", "url", "is_retweet").
		Values(post.Text, post.PostID, post.URL, post.IsReshare).
		Suffix("ON CONFLICT (tweet_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build tweet insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert tweet %s: %w", post.PostID, err)
	}
	return nil
}

// HasEmittedArticle reports whether url was relayed before for this service.
func (r *PostgresRepository) HasEmittedArticle(ctx context.Context, url string) (bool, error) {
	return r.exists(ctx, psql.Select("1").From(sentURLsTable).Where(sq.Eq{"service": r.service, "url": url}).Limit(1))
}

// RecordEmittedArticle stores a relayed article; a duplicate (service, url) is ignored.
func (r *PostgresRepository) RecordEmittedArticle(ctx context.Context, article domain.EmittedArticle) error {
	service := article.Service
	if service == "" {
		service = r.service
	}

	query, args, err := psql.Insert(sentURLsTable).
		Columns("url", "title", "category", "service").
		Values(article.URL, article.Title, article.Category, service).
		Suffix("ON CONFLICT (service, url) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build sent_url insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert sent_url %s: %w", article.URL, err)
	}
	return nil
}

func (r *PostgresRepository) exists(ctx context.Context, b sq.SelectBuilder) (bool, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists query: %w", err)
	}
	return true, nil
}
