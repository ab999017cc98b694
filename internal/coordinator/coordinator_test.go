package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martyparty1988/Martyai/internal/calendar"
	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/derive"
	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/storage"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

const janeFeed = "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:jane\r\nDTSTART:20250501T150000Z\r\nDTEND:20250503T110000Z\r\nSUMMARY:Reservation for Jane Doe\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []models.QueueEntry
	failFor   map[string]bool
	down      bool
	// onSubmit runs before each submit, outside the lock.
	onSubmit func(ctx context.Context, e models.QueueEntry)
}

func (f *fakeSubmitter) Submit(ctx context.Context, e models.QueueEntry) error {
	if f.onSubmit != nil {
		f.onSubmit(ctx, e)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down || f.failFor[e.EntityID] {
		return errors.New("remote rejected change")
	}
	f.submitted = append(f.submitted, e)
	return nil
}

func (f *fakeSubmitter) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("unreachable")
	}
	return nil
}

func (f *fakeSubmitter) Close() error { return nil }

func (f *fakeSubmitter) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeSubmitter) titles(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var titles []string
	for _, e := range f.submitted {
		var task models.Task
		require.NoError(t, json.Unmarshal(e.Payload, &task))
		titles = append(titles, e.Action+":"+task.Title)
	}
	return titles
}

func (f *fakeSubmitter) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, e := range f.submitted {
		ids = append(ids, e.EntityID)
	}
	return ids
}

type recordingNotifier struct {
	mu          sync.Mutex
	feedErrors  []string
	syncs       int
	transitions []models.Transition
	drains      []models.DrainResult
	changes     int
}

func (n *recordingNotifier) SyncCompleted(models.SyncResult) {
	n.mu.Lock()
	n.syncs++
	n.mu.Unlock()
}

func (n *recordingNotifier) FeedError(property string, _ error) {
	n.mu.Lock()
	n.feedErrors = append(n.feedErrors, property)
	n.mu.Unlock()
}

func (n *recordingNotifier) ConnectivityChanged(t models.Transition) {
	n.mu.Lock()
	n.transitions = append(n.transitions, t)
	n.mu.Unlock()
}

func (n *recordingNotifier) QueueDrained(r models.DrainResult) {
	n.mu.Lock()
	n.drains = append(n.drains, r)
	n.mu.Unlock()
}

func (n *recordingNotifier) ChangeRecorded(models.Change) {
	n.mu.Lock()
	n.changes++
	n.mu.Unlock()
}

type harness struct {
	coordinator  *Coordinator
	monitor      *Monitor
	submitter    *fakeSubmitter
	notifier     *recordingNotifier
	queue        *storage.QueueRepository
	tasks        *storage.TaskRepository
	reservations *storage.ReservationRepository
}

func newHarness(t *testing.T, online bool, opts Options) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "coordinator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logging.Discard()
	h := &harness{
		monitor:   NewMonitor(online),
		submitter: &fakeSubmitter{failFor: map[string]bool{}},
		notifier:  &recordingNotifier{},
		queue:     storage.NewQueueRepository(db),
	}

	journal := NewJournal(h.monitor, h.queue, h.submitter, h.notifier, log)
	h.reservations = storage.NewReservationRepository(db, journal)
	h.tasks = storage.NewTaskRepository(db, journal)

	feeds := calendar.NewFeedSync(calendar.NewFetcher(storage.NewFeedCacheRepository(db), log), h.reservations, log)
	engine := derive.NewEngine(h.tasks, nil, log)

	h.coordinator = New(feeds, h.reservations, h.tasks, engine, h.queue, h.submitter, h.monitor, h.notifier, log, opts)
	return h
}

func manualTask(title string) *models.Task {
	return &models.Task{Property: "villaA", Date: "2025-05-10", Title: title}
}

func TestMonitor_SetPublishesTransitions(t *testing.T) {
	m := NewMonitor(true)
	ch := m.Subscribe(4)

	assert.False(t, m.Set(true))
	assert.True(t, m.Set(false))
	assert.False(t, m.Online())

	tr := <-ch
	assert.Equal(t, models.StateOnline, tr.From)
	assert.Equal(t, models.StateOffline, tr.To)

	state, since := m.State()
	assert.Equal(t, models.StateOffline, state)
	assert.Equal(t, tr.At, since)
}

func TestMonitor_FullSubscriberKeepsLatestTransition(t *testing.T) {
	m := NewMonitor(true)
	ch := m.Subscribe(2)

	m.Set(false)
	m.Set(true)
	m.Set(false)
	m.Set(true)

	require.Len(t, ch, 2)
	first, last := <-ch, <-ch
	assert.Equal(t, models.StateOffline, first.To)
	assert.Equal(t, models.StateOnline, last.To)
}

func TestMonitor_Probe(t *testing.T) {
	m := NewMonitor(true)
	p := &fakeSubmitter{down: true}

	assert.False(t, m.Probe(context.Background(), p))
	assert.False(t, m.Online())

	p.setDown(false)
	assert.True(t, m.Probe(context.Background(), p))
	assert.True(t, m.Online())
}

func TestJournal_OfflineMutationsQueueThenDrain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Options{ContinueOnError: true})

	var ids []string
	for _, title := range []string{"Fix tap", "Replace bulb", "Water plants"} {
		task := manualTask(title)
		require.NoError(t, h.tasks.Add(ctx, task))
		ids = append(ids, task.ID)
	}
	_, err := h.tasks.SetCompleted(ctx, ids[0], true)
	require.NoError(t, err)

	n, err := h.queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Empty(t, h.submitter.ids())

	_, err = h.coordinator.Drain(ctx)
	assert.ErrorIs(t, err, ErrOffline)

	h.monitor.Set(true)
	result, err := h.coordinator.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DrainResult{Attempted: 4, Submitted: 4, Remaining: 0}, result)
	assert.Equal(t, []string{ids[0], ids[1], ids[2], ids[0]}, h.submitter.ids())

	n, err = h.queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJournal_OnlineMutationsAreSubmittedLive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, Options{})

	task := manualTask("Fix tap")
	require.NoError(t, h.tasks.Add(ctx, task))
	assert.Equal(t, []string{task.ID}, h.submitter.ids())

	h.submitter.setDown(true)
	require.NoError(t, h.tasks.Delete(ctx, task.ID))

	entries, err := h.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionDelete, entries[0].Action)
	assert.Equal(t, 2, h.notifier.changes)
}

func TestJournal_OnlineChangeWaitsBehindQueuedEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Options{ContinueOnError: true})

	task := manualTask("Fix tap")
	require.NoError(t, h.tasks.Add(ctx, task))
	task.Title = "v1 offline"
	require.NoError(t, h.tasks.Update(ctx, task))

	h.monitor.Set(true)
	task.Title = "v2 online"
	require.NoError(t, h.tasks.Update(ctx, task))
	assert.Empty(t, h.submitter.ids(), "entity still has queued changes")

	other := manualTask("Replace bulb")
	require.NoError(t, h.tasks.Add(ctx, other))
	assert.Equal(t, []string{other.ID}, h.submitter.ids(), "unrelated entities go live")

	_, err := h.coordinator.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"add:Replace bulb", "add:Fix tap", "update:v2 online"}, h.submitter.titles(t))

	n, err := h.queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJournal_FailedLiveSubmitQueuedAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, true, Options{})
	h.submitter.onSubmit = func(context.Context, models.QueueEntry) { cancel() }

	task := manualTask("Fix tap")
	require.NoError(t, h.tasks.Add(ctx, task))
	assert.Empty(t, h.submitter.ids())

	entries, err := h.queue.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, task.ID, entries[0].EntityID)
}

func TestDrain_KeepsChangeRefreshedDuringReplay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Options{ContinueOnError: true})

	task := manualTask("Fix tap")
	require.NoError(t, h.tasks.Add(ctx, task))
	task.Title = "v1"
	require.NoError(t, h.tasks.Update(ctx, task))
	h.monitor.Set(true)

	fired := false
	h.submitter.onSubmit = func(_ context.Context, e models.QueueEntry) {
		if fired || e.Action != models.ActionUpdate {
			return
		}
		fired = true
		task.Title = "v2"
		require.NoError(t, h.tasks.Update(ctx, task))
	}

	result, err := h.coordinator.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempted)
	assert.Zero(t, result.Remaining)
	assert.Equal(t, []string{"add:Fix tap", "update:v1", "update:v2"}, h.submitter.titles(t))
}

func TestDrainPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Options{ContinueOnError: true})
	require.NoError(t, h.tasks.Add(ctx, manualTask("Fix tap")))

	h.coordinator.DrainPending(ctx)
	n, err := h.queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "offline leaves the queue alone")

	h.monitor.Set(true)
	h.coordinator.DrainPending(ctx)
	n, err = h.queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.coordinator.DrainPending(ctx)
	assert.Len(t, h.notifier.drains, 1, "empty queue is not drained")
}

func TestDrain_ContinueOnErrorKeepsFailedEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Options{ContinueOnError: true})

	var ids []string
	for _, title := range []string{"A", "B", "C"} {
		task := manualTask(title)
		require.NoError(t, h.tasks.Add(ctx, task))
		ids = append(ids, task.ID)
	}
	h.submitter.failFor[ids[1]] = true
	h.monitor.Set(true)

	result, err := h.coordinator.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 2, result.Submitted)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Remaining)
	assert.Equal(t, []string{ids[0], ids[2]}, h.submitter.ids())

	entries, err := h.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ids[1], entries[0].EntityID)
	assert.Equal(t, 1, entries[0].Attempts)
	require.NotNil(t, entries[0].LastError)
}

func TestDrain_StopOnError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Options{ContinueOnError: false})

	var ids []string
	for _, title := range []string{"A", "B", "C"} {
		task := manualTask(title)
		require.NoError(t, h.tasks.Add(ctx, task))
		ids = append(ids, task.ID)
	}
	h.submitter.failFor[ids[0]] = true
	h.monitor.Set(true)

	result, err := h.coordinator.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DrainResult{Attempted: 1, Failed: 1, Remaining: 3}, result)
	assert.Empty(t, h.submitter.ids())
}

func TestDrain_RejectsConcurrentRuns(t *testing.T) {
	h := newHarness(t, true, Options{})

	h.coordinator.drainMu.Lock()
	_, err := h.coordinator.Drain(context.Background())
	h.coordinator.drainMu.Unlock()
	assert.ErrorIs(t, err, ErrDrainInProgress)

	h.coordinator.cycleMu.Lock()
	_, err = h.coordinator.RunCycle(context.Background())
	h.coordinator.cycleMu.Unlock()
	assert.ErrorIs(t, err, ErrCycleInProgress)
}

func feedServers(t *testing.T) (good, bad string) {
	t.Helper()
	g := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(janeFeed))
	}))
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(g.Close)
	t.Cleanup(b.Close)
	return g.URL, b.URL
}

func TestRunCycle_DerivesTasksAndIsolatesFeedErrors(t *testing.T) {
	ctx := context.Background()
	good, bad := feedServers(t)

	h := newHarness(t, true, Options{
		Feeds: []calendar.Feed{
			{Property: "villaA", URL: good},
			{Property: "villaB", URL: bad},
		},
	})

	result, err := h.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TasksCreated)
	assert.Equal(t, 1, result.FailedFeeds())
	assert.Equal(t, []string{"villaB"}, h.notifier.feedErrors)

	second, err := h.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.TasksCreated)

	n, err := h.tasks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	departures, err := h.tasks.ListByPropertyAndDate(ctx, "villaA", "2025-05-02")
	require.NoError(t, err)
	require.Len(t, departures, 1)
	assert.Equal(t, "Departure cleaning: Jane Doe", departures[0].Title)

	status, err := h.coordinator.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateOnline, status.State)
	assert.Equal(t, 1, status.Reservations)
	assert.Equal(t, 2, status.Tasks)
	require.NotNil(t, status.LastSync)
	assert.Equal(t, 2, h.notifier.syncs)
}

func TestRunCycle_ReportsStaleFeed(t *testing.T) {
	ctx := context.Background()
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(janeFeed))
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t, true, Options{Feeds: []calendar.Feed{{Property: "villaA", URL: srv.URL}}})

	_, err := h.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, h.notifier.feedErrors)

	down.Store(true)
	result, err := h.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, result.Feeds, 1)
	assert.True(t, result.Feeds[0].FromCache)
	assert.Contains(t, result.Feeds[0].StaleMessage, "503")
	assert.Zero(t, result.FailedFeeds(), "cached bookings were still synced")
	assert.Equal(t, []string{"villaA"}, h.notifier.feedErrors)
}

func TestRunCycle_ExpandsRecurringTasks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, Options{
		HorizonDays: 14,
		Recurring: []config.RecurringTask{
			{Property: "villaA", Title: "Pool maintenance", RRule: "FREQ=WEEKLY;BYDAY=MO"},
		},
	})
	h.coordinator.SetClock(func() time.Time { return time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC) })

	result, err := h.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecurringCreated)
}

func TestRunCycle_CountsDoubleBookings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, Options{})

	for _, r := range []*models.Reservation{
		{
			ID: "villaA:one", Property: "villaA", GuestName: "One",
			StartDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC),
		},
		{
			ID: "villaA:two", Property: "villaA", GuestName: "Two",
			StartDate: time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC),
		},
		{
			ID: "villaB:three", Property: "villaB", GuestName: "Three",
			StartDate: time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC),
		},
	} {
		require.NoError(t, h.reservations.Upsert(ctx, r))
	}

	result, err := h.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DoubleBookings)
	assert.Equal(t, 6, result.TasksCreated)
}

func TestStartup_RunsCycleOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	good, _ := feedServers(t)
	h := newHarness(t, true, Options{Feeds: []calendar.Feed{{Property: "villaA", URL: good}}})

	require.NoError(t, h.coordinator.Startup(ctx))
	assert.Equal(t, 1, h.notifier.syncs)

	require.NoError(t, h.coordinator.Startup(ctx))
	assert.Equal(t, 1, h.notifier.syncs)
}

func TestRun_OnlineTransitionDrainsThenSyncs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good, _ := feedServers(t)
	h := newHarness(t, false, Options{ContinueOnError: true, Feeds: []calendar.Feed{{Property: "villaA", URL: good}}})

	require.NoError(t, h.tasks.Add(ctx, manualTask("Offline edit")))

	done := make(chan struct{})
	go func() {
		h.coordinator.Run(ctx)
		close(done)
	}()

	h.monitor.Set(true)

	require.Eventually(t, func() bool {
		h.notifier.mu.Lock()
		defer h.notifier.mu.Unlock()
		return h.notifier.syncs == 1 && len(h.notifier.drains) == 1
	}, 5*time.Second, 10*time.Millisecond)

	n, err := h.queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.notifier.mu.Lock()
	require.Len(t, h.notifier.transitions, 1)
	assert.Equal(t, models.StateOnline, h.notifier.transitions[0].To)
	h.notifier.mu.Unlock()

	cancel()
	<-done
}

func TestScheduler(t *testing.T) {
	h := newHarness(t, true, Options{})
	log := logging.Discard()

	bad := NewScheduler(h.coordinator, nil, "every tuesday", 0, log)
	require.Error(t, bad.Start(context.Background()))

	s := NewScheduler(h.coordinator, h.submitter, "*/30 * * * *", time.Minute, log)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	next := s.NextRun()
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))
	assert.Zero(t, next.Minute()%30)

	off := NewScheduler(h.coordinator, nil, "", 0, log)
	require.NoError(t, off.Start(context.Background()))
	assert.Nil(t, off.NextRun())
	off.Stop()
}
