package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Martyparty1988/Martyai/internal/calendar"
	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/derive"
	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/remote"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

var (
	// ErrCycleInProgress is returned when a sync cycle is already running.
	ErrCycleInProgress = errors.New("sync cycle already in progress")
	// ErrDrainInProgress is returned when the queue is already being replayed.
	ErrDrainInProgress = errors.New("queue drain already in progress")
	// ErrOffline is returned when a drain is requested while offline.
	ErrOffline = errors.New("remote endpoint is offline")
)

// ReservationStore is the read side of the reservation store.
type ReservationStore interface {
	List(ctx context.Context) ([]models.Reservation, error)
	Count(ctx context.Context) (int, error)
}

// TaskCounter counts stored tasks.
type TaskCounter interface {
	Count(ctx context.Context) (int, error)
}

// Options configures a Coordinator.
type Options struct {
	Feeds           []calendar.Feed
	Recurring       []config.RecurringTask
	HorizonDays     int
	ContinueOnError bool
}

// FeedsFromConfig returns the feeds of properties that have a feed URL.
func FeedsFromConfig(properties []config.Property) []calendar.Feed {
	var feeds []calendar.Feed
	for _, p := range properties {
		if p.FeedURL != "" {
			feeds = append(feeds, calendar.Feed{Property: p.Key, URL: p.FeedURL})
		}
	}
	return feeds
}

// Status is a snapshot of the sync state.
type Status struct {
	State        string              `json:"state"`
	Since        time.Time           `json:"since"`
	QueueLength  int                 `json:"queue_length"`
	Reservations int                 `json:"reservations"`
	Tasks        int                 `json:"tasks"`
	Syncing      bool                `json:"syncing"`
	LastSync     *models.SyncResult  `json:"last_sync,omitempty"`
	LastDrain    *models.DrainResult `json:"last_drain,omitempty"`
}

// Coordinator runs fetch, parse, upsert and derive cycles and replays the
// sync queue on Offline to Online transitions.
type Coordinator struct {
	feeds        *calendar.FeedSync
	reservations ReservationStore
	tasks        TaskCounter
	engine       *derive.Engine
	queue        Queue
	submitter    remote.Submitter
	monitor      *Monitor
	notifier     Notifier
	log          logging.Logger
	opts         Options
	now          func() time.Time

	transitions <-chan models.Transition

	cycleMu sync.Mutex
	drainMu sync.Mutex

	statusMu  sync.RWMutex
	syncing   bool
	lastSync  *models.SyncResult
	lastDrain *models.DrainResult
}

// New creates a coordinator and subscribes it to monitor transitions.
// notifier may be nil.
func New(
	feeds *calendar.FeedSync,
	reservations ReservationStore,
	tasks TaskCounter,
	engine *derive.Engine,
	queue Queue,
	submitter remote.Submitter,
	monitor *Monitor,
	notifier Notifier,
	log logging.Logger,
	opts Options,
) *Coordinator {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 30
	}
	return &Coordinator{
		feeds:        feeds,
		reservations: reservations,
		tasks:        tasks,
		engine:       engine,
		queue:        queue,
		submitter:    submitter,
		monitor:      monitor,
		notifier:     notifier,
		log:          log,
		opts:         opts,
		now:          time.Now,
		transitions:  monitor.Subscribe(16),
	}
}

// SetClock replaces the time source.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Monitor returns the connectivity monitor.
func (c *Coordinator) Monitor() *Monitor {
	return c.monitor
}

// Startup replays leftovers from a previous run when online and runs a
// first cycle when the task store is empty.
func (c *Coordinator) Startup(ctx context.Context) error {
	c.DrainPending(ctx)

	n, err := c.tasks.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting tasks: %w", err)
	}
	if n > 0 {
		return nil
	}

	c.log.Info(ctx, "task store is empty, running initial sync")
	if _, err := c.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		return err
	}
	return nil
}

// Run handles connectivity transitions until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-c.transitions:
			c.HandleTransition(ctx, t)
		}
	}
}

// HandleTransition reacts to one connectivity change. Going online drains
// the queue and then runs a full cycle.
func (c *Coordinator) HandleTransition(ctx context.Context, t models.Transition) {
	c.log.Info(ctx, "connectivity changed", "from", t.From, "to", t.To)
	c.notifier.ConnectivityChanged(t)

	if t.To != models.StateOnline {
		return
	}

	if _, err := c.Drain(ctx); err != nil && !errors.Is(err, ErrDrainInProgress) {
		c.log.Warn(ctx, "queue drain failed", "error", err)
	}
	if _, err := c.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		c.log.Error(ctx, "sync cycle failed", "error", err)
	}
}

// RunCycle fetches every feed, upserts the parsed reservations, derives
// tasks over all stored reservations and expands recurring tasks. A feed
// that cannot be fetched is reported and skipped.
func (c *Coordinator) RunCycle(ctx context.Context) (models.SyncResult, error) {
	if !c.cycleMu.TryLock() {
		return models.SyncResult{}, ErrCycleInProgress
	}
	defer c.cycleMu.Unlock()

	c.setSyncing(true)
	defer c.setSyncing(false)

	result := models.SyncResult{StartedAt: c.now().UTC()}

	fetched := c.feeds.FetchAll(ctx, c.opts.Feeds)
	feeds, _, err := c.feeds.Apply(ctx, fetched)
	result.Feeds = feeds
	if err != nil {
		return result, err
	}
	for _, f := range feeds {
		switch {
		case f.Error != nil:
			c.log.Warn(ctx, "feed sync failed", "property", f.Property, "error", f.Error)
			c.notifier.FeedError(f.Property, f.Error)
		case f.Stale != nil:
			c.log.Warn(ctx, "feed refresh failed, synced cached copy", "property", f.Property, "error", f.Stale)
			c.notifier.FeedError(f.Property, f.Stale)
		}
	}

	reservations, err := c.reservations.List(ctx)
	if err != nil {
		return result, fmt.Errorf("listing reservations: %w", err)
	}

	overlaps := derive.FindOverlaps(reservations)
	for _, o := range overlaps {
		c.log.Warn(ctx, "double booking detected", "property", o.Property,
			"first", o.First, "second", o.Second, "from", o.OverlapStart, "until", o.OverlapEnd)
	}
	result.DoubleBookings = len(overlaps)

	derived, err := c.engine.Run(ctx, reservations)
	result.TasksCreated = derived.Created
	result.TasksSkipped = derived.Skipped
	if err != nil {
		return result, fmt.Errorf("deriving tasks: %w", err)
	}

	if len(c.opts.Recurring) > 0 {
		from := result.StartedAt
		to := from.AddDate(0, 0, c.opts.HorizonDays)
		recurring, err := c.engine.RunRecurring(ctx, c.opts.Recurring, from, to)
		result.RecurringCreated = recurring.Created
		if err != nil {
			return result, fmt.Errorf("expanding recurring tasks: %w", err)
		}
	}

	result.SyncedAt = c.now().UTC()

	c.statusMu.Lock()
	last := result
	c.lastSync = &last
	c.statusMu.Unlock()

	c.log.Info(ctx, "sync cycle completed",
		"feeds", len(result.Feeds),
		"failed_feeds", result.FailedFeeds(),
		"tasks_created", result.TasksCreated,
		"recurring_created", result.RecurringCreated,
		"duration", result.SyncedAt.Sub(result.StartedAt),
	)
	c.notifier.SyncCompleted(result)

	return result, nil
}

// Drain replays queued changes in insertion order. A submitted entry is
// deleted; a failed one stays queued with its attempt count raised, and
// the drain continues or stops per ContinueOnError. Entries queued or
// refreshed while the drain runs are replayed before it returns; a failed
// entry is attempted once per drain. Going offline stops the drain before
// the next entry.
func (c *Coordinator) Drain(ctx context.Context) (models.DrainResult, error) {
	if !c.drainMu.TryLock() {
		return models.DrainResult{}, ErrDrainInProgress
	}
	defer c.drainMu.Unlock()

	if !c.monitor.Online() {
		return models.DrainResult{}, ErrOffline
	}

	var result models.DrainResult
	attempted := make(map[int64]int64)
	for pass := true; pass; {
		entries, err := c.queue.List(ctx)
		if err != nil {
			return result, err
		}

		pass = false
		for _, entry := range entries {
			if v, ok := attempted[entry.Seq]; ok && v == entry.Version {
				continue
			}
			if ctx.Err() != nil || !c.monitor.Online() {
				result.Interrupted = true
				pass = false
				break
			}
			attempted[entry.Seq] = entry.Version
			pass = true

			result.Attempted++
			if err := c.submitter.Submit(ctx, entry); err != nil {
				result.Failed++
				c.log.Warn(ctx, "queued change rejected", "seq", entry.Seq, "entity", entry.EntityType, "id", entry.EntityID, "error", err)
				if markErr := c.queue.MarkFailed(ctx, entry.Seq, err.Error()); markErr != nil {
					return result, markErr
				}
				if !c.opts.ContinueOnError {
					pass = false
					break
				}
				continue
			}

			deleted, err := c.queue.Delete(ctx, entry)
			if err != nil {
				return result, err
			}
			if !deleted {
				c.log.Debug(ctx, "queued change refreshed during replay, keeping it", "seq", entry.Seq, "entity", entry.EntityType, "id", entry.EntityID)
			}
			result.Submitted++
		}
	}

	remaining, err := c.queue.Count(ctx)
	if err != nil {
		return result, err
	}
	result.Remaining = remaining

	c.statusMu.Lock()
	last := result
	c.lastDrain = &last
	c.statusMu.Unlock()

	if result.Attempted > 0 {
		c.log.Info(ctx, "queue drained", "submitted", result.Submitted, "failed", result.Failed, "remaining", result.Remaining)
		c.notifier.QueueDrained(result)
	}
	return result, nil
}

// DrainPending drains the queue when online and not empty. Errors are
// logged.
func (c *Coordinator) DrainPending(ctx context.Context) {
	if !c.monitor.Online() {
		return
	}
	n, err := c.queue.Count(ctx)
	if err != nil {
		c.log.Warn(ctx, "counting sync queue failed", "error", err)
		return
	}
	if n == 0 {
		return
	}
	if _, err := c.Drain(ctx); err != nil && !errors.Is(err, ErrDrainInProgress) && !errors.Is(err, ErrOffline) {
		c.log.Warn(ctx, "queue drain failed", "error", err)
	}
}

// Status returns the current sync state.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	state, since := c.monitor.State()
	s := Status{State: state, Since: since}

	var err error
	if s.QueueLength, err = c.queue.Count(ctx); err != nil {
		return s, err
	}
	if s.Reservations, err = c.reservations.Count(ctx); err != nil {
		return s, err
	}
	if s.Tasks, err = c.tasks.Count(ctx); err != nil {
		return s, err
	}

	c.statusMu.RLock()
	s.Syncing = c.syncing
	s.LastSync = c.lastSync
	s.LastDrain = c.lastDrain
	c.statusMu.RUnlock()

	return s, nil
}

func (c *Coordinator) setSyncing(v bool) {
	c.statusMu.Lock()
	c.syncing = v
	c.statusMu.Unlock()
}
