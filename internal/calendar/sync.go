package calendar

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// Feed is one property's booking calendar.
type Feed struct {
	Property string
	URL      string
}

// Fetched is the outcome of downloading one feed.
type Fetched struct {
	Feed
	Result FetchResult
	Err    error
}

// ReservationStore is the write side of the reservation store.
type ReservationStore interface {
	Upsert(ctx context.Context, r *models.Reservation) error
}

// FeedSync downloads feeds concurrently and applies them to the store one
// at a time.
type FeedSync struct {
	fetcher *Fetcher
	parser  *Parser
	store   ReservationStore
	log     logging.Logger
	limit   int
}

// NewFeedSync creates a new feed sync service.
func NewFeedSync(fetcher *Fetcher, store ReservationStore, log logging.Logger) *FeedSync {
	return &FeedSync{
		fetcher: fetcher,
		parser:  NewParser(),
		store:   store,
		log:     log,
		limit:   4,
	}
}

// FetchAll downloads every feed. A failing feed is reported in its own
// Fetched entry and does not affect the others. Results keep feeds' order.
func (s *FeedSync) FetchAll(ctx context.Context, feeds []Feed) []Fetched {
	out := make([]Fetched, len(feeds))

	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, feed := range feeds {
		g.Go(func() error {
			res, err := s.fetcher.Fetch(ctx, feed.Property, feed.URL)
			out[i] = Fetched{Feed: feed, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Apply parses each fetched body and upserts its reservations. Storage
// errors abort and are returned; fetch errors are carried in the results.
func (s *FeedSync) Apply(ctx context.Context, fetched []Fetched) ([]models.FeedResult, []models.Reservation, error) {
	results := make([]models.FeedResult, 0, len(fetched))
	var upserted []models.Reservation

	for _, f := range fetched {
		result := models.FeedResult{Property: f.Property}
		if f.Err != nil {
			result.Error = f.Err
			result.ErrorMessage = f.Err.Error()
			results = append(results, result)
			continue
		}

		reservations, skipped := s.parser.ParseReport(bytes.NewReader(f.Result.Body), f.Property)
		if skipped > 0 {
			s.log.Debug(ctx, "skipped malformed feed blocks", "property", f.Property, "skipped", skipped)
		}
		result.EventsFound = len(reservations)
		result.FromCache = f.Result.FromCache
		if f.Result.Stale != nil {
			result.Stale = f.Result.Stale
			result.StaleMessage = f.Result.Stale.Error()
		}

		for i := range reservations {
			if err := s.store.Upsert(ctx, &reservations[i]); err != nil {
				return results, upserted, fmt.Errorf("storing reservation %s: %w", reservations[i].ID, err)
			}
			result.Upserted++
			upserted = append(upserted, reservations[i])
		}
		results = append(results, result)
	}

	return results, upserted, nil
}
