package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/storage"
)

// FeedCache persists the last good body of each feed.
type FeedCache interface {
	Get(ctx context.Context, url string) (*storage.CachedFeed, error)
	Put(ctx context.Context, f storage.CachedFeed) error
}

// FetchResult is the body of one feed, fresh or from cache. Stale is set
// when the cached body stands in for a failed fetch.
type FetchResult struct {
	Property  string
	Body      []byte
	FromCache bool
	Stale     error
}

// Fetcher downloads booking feeds with ETag / Last-Modified revalidation.
type Fetcher struct {
	client *http.Client
	cache  FeedCache
	log    logging.Logger
}

// NewFetcher creates a fetcher. cache may be nil.
func NewFetcher(cache FeedCache, log logging.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
		log:   log,
	}
}

// WithClient replaces the HTTP client.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// Fetch downloads the feed at feedURL. The cached body is returned on 304,
// and also on network errors and non-OK statuses when one exists.
func (f *Fetcher) Fetch(ctx context.Context, property, feedURL string) (FetchResult, error) {
	if feedURL == "" {
		return FetchResult{}, errors.New("feed URL is empty")
	}

	cached := f.loadCache(ctx, feedURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("building feed request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if cached != nil {
			f.log.Warn(ctx, "feed unreachable, using cached body", "property", property, "url", redactURL(feedURL), "error", err)
			return FetchResult{Property: property, Body: cached.Body, FromCache: true, Stale: fmt.Errorf("fetching feed: %w", err)}, nil
		}
		return FetchResult{}, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FetchResult{}, fmt.Errorf("reading feed: %w", err)
		}
		if f.cache != nil {
			entry := storage.CachedFeed{
				URL:          feedURL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
				Body:         body,
			}
			if err := f.cache.Put(ctx, entry); err != nil {
				f.log.Warn(ctx, "feed cache save failed", "property", property, "error", err)
			}
		}
		f.log.Debug(ctx, "feed fetched", "property", property, "url", redactURL(feedURL), "bytes", len(body))
		return FetchResult{Property: property, Body: body}, nil

	case http.StatusNotModified:
		if cached == nil {
			return FetchResult{}, errors.New("feed returned 304 Not Modified but nothing is cached")
		}
		f.log.Debug(ctx, "feed not modified", "property", property, "url", redactURL(feedURL))
		return FetchResult{Property: property, Body: cached.Body, FromCache: true}, nil

	default:
		if cached != nil {
			f.log.Warn(ctx, "feed returned error status, using cached body", "property", property, "url", redactURL(feedURL), "status", resp.StatusCode)
			stale := fmt.Errorf("feed returned status %d", resp.StatusCode)
			return FetchResult{Property: property, Body: cached.Body, FromCache: true, Stale: stale}, nil
		}
		return FetchResult{}, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
}

func (f *Fetcher) loadCache(ctx context.Context, feedURL string) *storage.CachedFeed {
	if f.cache == nil {
		return nil
	}
	cached, err := f.cache.Get(ctx, feedURL)
	if err != nil {
		f.log.Warn(ctx, "feed cache read failed", "url", redactURL(feedURL), "error", err)
		return nil
	}
	return cached
}

// redactURL keeps only scheme and host; booking feed paths carry secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
