package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CachedFeed is the last good body of a feed plus its HTTP validators.
type CachedFeed struct {
	URL          string
	ETag         string
	LastModified string
	Body         []byte
	UpdatedAt    time.Time
}

// FeedCacheRepository stores fetched feed bodies for conditional requests
// and for fallback when the source is unreachable.
type FeedCacheRepository struct {
	db *DB
}

// NewFeedCacheRepository creates a new feed cache repository.
func NewFeedCacheRepository(db *DB) *FeedCacheRepository {
	return &FeedCacheRepository{db: db}
}

// Get returns the cached feed for url, or nil, nil.
func (r *FeedCacheRepository) Get(ctx context.Context, url string) (*CachedFeed, error) {
	var f CachedFeed
	err := r.db.QueryRowContext(ctx, `
		SELECT url, etag, last_modified, body, updated_at FROM feed_cache WHERE url = ?
	`, url).Scan(&f.URL, &f.ETag, &f.LastModified, &f.Body, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying feed cache: %w", err)
	}
	return &f, nil
}

// Put stores or replaces the cached feed.
func (r *FeedCacheRepository) Put(ctx context.Context, f CachedFeed) error {
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_cache (url, etag, last_modified, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			body = excluded.body,
			updated_at = excluded.updated_at
	`, f.URL, f.ETag, f.LastModified, f.Body, f.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving feed cache: %w", err)
	}
	return nil
}
