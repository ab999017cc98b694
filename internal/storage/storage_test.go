package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// queueingRecorder enqueues while offline and remembers live publishes.
type queueingRecorder struct {
	queue   *QueueRepository
	offline bool
	fail    error

	mu        sync.Mutex
	published []models.Change
}

func (r *queueingRecorder) Capture(ctx context.Context, q Queryable, c models.Change) (bool, error) {
	if r.fail != nil {
		return false, r.fail
	}
	if !r.offline {
		return false, nil
	}
	return true, r.queue.EnqueueTx(ctx, q, c)
}

func (r *queueingRecorder) Publish(_ context.Context, c models.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, c)
}

func intPtr(n int) *int { return &n }

func sampleReservation() *models.Reservation {
	start := time.Date(2025, 5, 1, 15, 0, 0, 0, time.UTC)
	return &models.Reservation{
		ID:        "villaA:uid-1",
		Property:  "villaA",
		GuestName: "Jane Doe",
		StartDate: start,
		EndDate:   time.Date(2025, 5, 3, 11, 0, 0, 0, time.UTC),
		UID:       "uid-1",
		Summary:   "Reservation for Jane Doe",
	}
}

func sampleTask(kind, date string) *models.Task {
	return &models.Task{
		Property: "villaA",
		Date:     date,
		Priority: models.PriorityHigh,
		Title:    "Departure cleaning: Jane Doe",
		Kind:     kind,
		Subtasks: models.NewChecklist([]string{"Strip linens", "Replace towels"}),
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, RunMigrations(context.Background(), db))
}

func TestReservationRepository_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewReservationRepository(newTestDB(t), nil)

	res := sampleReservation()
	require.NoError(t, repo.Upsert(ctx, res))
	created := res.CreatedAt

	changed := sampleReservation()
	changed.GuestName = "John Roe"
	changed.GuestCount = intPtr(4)
	require.NoError(t, repo.Upsert(ctx, changed))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "John Roe", all[0].GuestName)
	require.NotNil(t, all[0].GuestCount)
	assert.Equal(t, 4, *all[0].GuestCount)
	assert.True(t, all[0].StartDate.Equal(res.StartDate))
	assert.True(t, all[0].CreatedAt.Equal(created))
}

func TestReservationRepository_RejectsInvalid(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t), nil)
	res := sampleReservation()
	res.EndDate = res.StartDate

	err := repo.Upsert(context.Background(), res)
	assert.ErrorIs(t, err, models.ErrInvalid)
}

func TestReservationRepository_Queries(t *testing.T) {
	ctx := context.Background()
	repo := NewReservationRepository(newTestDB(t), nil)

	day := func(d int) time.Time { return time.Date(2025, 5, d, 0, 0, 0, 0, time.UTC) }
	for _, r := range []models.Reservation{
		{ID: "a1", Property: "villaA", GuestName: "A", StartDate: day(1), EndDate: day(3)},
		{ID: "a2", Property: "villaA", GuestName: "B", StartDate: day(10), EndDate: day(12)},
		{ID: "b1", Property: "villaB", GuestName: "C", StartDate: day(3), EndDate: day(6)},
	} {
		r := r
		require.NoError(t, repo.Upsert(ctx, &r))
	}

	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "C", got.GuestName)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byProp, err := repo.ListByProperty(ctx, "villaA")
	require.NoError(t, err)
	assert.Len(t, byProp, 2)

	// overlap is inclusive on both ends: a1 ends on day 3, b1 starts on day 3
	overlap, err := repo.ListByDateRange(ctx, day(3), day(4))
	require.NoError(t, err)
	ids := []string{}
	for _, r := range overlap {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"a1", "b1"}, ids)

	none, err := repo.ListByDateRange(ctx, day(20), day(25))
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTaskRepository_AddAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t), nil)

	task := sampleTask(models.TaskKindDeparture, "2025-05-02")
	require.NoError(t, repo.Add(ctx, task))
	require.NotEmpty(t, task.ID)
	assert.False(t, task.CreatedAt.IsZero())

	manual := &models.Task{Property: "villaB", Date: "2025-05-02", Title: "Fix the gate"}
	require.NoError(t, repo.Add(ctx, manual))
	assert.Equal(t, models.TaskKindManual, manual.Kind)
	assert.Equal(t, models.PriorityMedium, manual.Priority)

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.Subtasks, got.Subtasks)

	byDate, err := repo.ListByDate(ctx, "2025-05-02")
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	byProp, err := repo.ListByProperty(ctx, "villaB")
	require.NoError(t, err)
	require.Len(t, byProp, 1)
	assert.Equal(t, "Fix the gate", byProp[0].Title)

	both, err := repo.ListByPropertyAndDate(ctx, "villaA", "2025-05-02")
	require.NoError(t, err)
	assert.Len(t, both, 1)

	open, err := repo.ListByCompleted(ctx, false)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestTaskRepository_CanonicalTaskConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t), nil)

	require.NoError(t, repo.Add(ctx, sampleTask(models.TaskKindDeparture, "2025-05-02")))
	err := repo.Add(ctx, sampleTask(models.TaskKindDeparture, "2025-05-02"))
	assert.ErrorIs(t, err, models.ErrConflict)

	// arrival and departure on the same day are separate tasks
	require.NoError(t, repo.Add(ctx, sampleTask(models.TaskKindArrival, "2025-05-02")))
	// manual tasks are not constrained
	require.NoError(t, repo.Add(ctx, sampleTask(models.TaskKindManual, "2025-05-02")))
	require.NoError(t, repo.Add(ctx, sampleTask(models.TaskKindManual, "2025-05-02")))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestTaskRepository_CompletionCascade(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t), nil)
	task := sampleTask(models.TaskKindDeparture, "2025-05-02")
	require.NoError(t, repo.Add(ctx, task))

	done, err := repo.SetCompleted(ctx, task.ID, true)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	for _, s := range done.Subtasks {
		assert.True(t, s.Completed)
	}

	reopened, err := repo.SetSubtaskCompleted(ctx, task.ID, "sub-1", false)
	require.NoError(t, err)
	assert.False(t, reopened.Completed)

	again, err := repo.SetSubtaskCompleted(ctx, task.ID, "sub-1", true)
	require.NoError(t, err)
	assert.True(t, again.Completed)

	stored, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.False(t, stored.UpdatedAt.Before(stored.CreatedAt))

	_, err = repo.SetSubtaskCompleted(ctx, task.ID, "sub-99", true)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.SetCompleted(ctx, "missing", true)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTaskRepository_UpdateRederivesCompletion(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t), nil)
	task := sampleTask(models.TaskKindDeparture, "2025-05-02")
	require.NoError(t, repo.Add(ctx, task))

	task.Completed = true
	task.Title = "Departure cleaning: Jane D."
	require.NoError(t, repo.Update(ctx, task))

	stored, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Departure cleaning: Jane D.", stored.Title)
	assert.False(t, stored.Completed, "open subtasks keep the task open")

	ghost := sampleTask(models.TaskKindManual, "2025-05-02")
	ghost.ID = "task_ghost"
	assert.ErrorIs(t, repo.Update(ctx, ghost), models.ErrNotFound)
}

func TestTaskRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t), nil)
	task := sampleTask(models.TaskKindManual, "2025-05-02")
	require.NoError(t, repo.Add(ctx, task))

	require.NoError(t, repo.Delete(ctx, task.ID))
	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.Delete(ctx, task.ID), models.ErrNotFound)
}

func TestRecorder_OfflineMutationsAreQueued(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	rec := &queueingRecorder{queue: queue, offline: true}
	tasks := NewTaskRepository(db, rec)
	reservations := NewReservationRepository(db, rec)

	require.NoError(t, reservations.Upsert(ctx, sampleReservation()))
	task := sampleTask(models.TaskKindDeparture, "2025-05-02")
	require.NoError(t, tasks.Add(ctx, task))
	_, err := tasks.SetCompleted(ctx, task.ID, true)
	require.NoError(t, err)
	other := sampleTask(models.TaskKindManual, "2025-05-04")
	require.NoError(t, tasks.Add(ctx, other))
	require.NoError(t, tasks.Delete(ctx, other.ID))

	entries, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	wantOrder := []string{
		models.EntityReservation + "/" + models.ActionAdd,
		models.EntityTask + "/" + models.ActionAdd,
		models.EntityTask + "/" + models.ActionUpdate,
		models.EntityTask + "/" + models.ActionAdd,
		models.EntityTask + "/" + models.ActionDelete,
	}
	for i, e := range entries {
		assert.Equal(t, wantOrder[i], e.EntityType+"/"+e.Action)
		if i > 0 {
			assert.Greater(t, e.Seq, entries[i-1].Seq)
		}
	}
	assert.Empty(t, rec.published)
}

func TestRecorder_OnlineMutationsArePublished(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	rec := &queueingRecorder{queue: queue}
	tasks := NewTaskRepository(db, rec)

	require.NoError(t, tasks.Add(ctx, sampleTask(models.TaskKindManual, "2025-05-02")))

	n, err := queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, rec.published, 1)
	assert.Equal(t, models.ActionAdd, rec.published[0].Action)
}

func TestRecorder_CaptureFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	rec := &queueingRecorder{queue: NewQueueRepository(db), fail: errors.New("disk full")}
	tasks := NewTaskRepository(db, rec)

	err := tasks.Add(ctx, sampleTask(models.TaskKindManual, "2025-05-02"))
	require.Error(t, err)

	n, err := tasks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueRepository_CoalescesByBusinessKey(t *testing.T) {
	ctx := context.Background()
	queue := NewQueueRepository(newTestDB(t))
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	first, _ := models.NewChange(models.EntityTask, models.ActionUpdate, "t1", map[string]int{"v": 1}, at)
	other, _ := models.NewChange(models.EntityTask, models.ActionUpdate, "t2", map[string]int{"v": 1}, at)
	second, _ := models.NewChange(models.EntityTask, models.ActionUpdate, "t1", map[string]int{"v": 2}, at.Add(time.Minute))

	require.NoError(t, queue.Enqueue(ctx, first))
	require.NoError(t, queue.Enqueue(ctx, other))
	require.NoError(t, queue.Enqueue(ctx, second))

	entries, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "t1", entries[0].EntityID, "coalesced entry keeps its position")
	assert.JSONEq(t, `{"v":2}`, string(entries[0].Payload))
	assert.True(t, entries[0].Timestamp.Equal(at.Add(time.Minute)))
}

func TestQueueRepository_MarkFailedAndDelete(t *testing.T) {
	ctx := context.Background()
	queue := NewQueueRepository(newTestDB(t))
	c, _ := models.NewChange(models.EntityTask, models.ActionDelete, "t1", nil, time.Now())
	require.NoError(t, queue.Enqueue(ctx, c))

	entries, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Payload)

	require.NoError(t, queue.MarkFailed(ctx, entries[0].Seq, "503 Service Unavailable"))
	entries, err = queue.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, entries[0].Attempts)
	require.NotNil(t, entries[0].LastError)
	assert.Equal(t, "503 Service Unavailable", *entries[0].LastError)

	deleted, err := queue.Delete(ctx, entries[0])
	require.NoError(t, err)
	assert.True(t, deleted)
	n, err := queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueRepository_DeleteKeepsRefreshedEntry(t *testing.T) {
	ctx := context.Background()
	queue := NewQueueRepository(newTestDB(t))
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	v1, _ := models.NewChange(models.EntityTask, models.ActionUpdate, "t1", map[string]string{"title": "v1"}, at)
	require.NoError(t, queue.Enqueue(ctx, v1))

	listed, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	replayed := listed[0]

	// a newer change lands while the listed entry is being replayed
	v2, _ := models.NewChange(models.EntityTask, models.ActionUpdate, "t1", map[string]string{"title": "v2"}, at)
	require.NoError(t, queue.Enqueue(ctx, v2))

	deleted, err := queue.Delete(ctx, replayed)
	require.NoError(t, err)
	assert.False(t, deleted)

	entries, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, replayed.Seq, entries[0].Seq)
	assert.Greater(t, entries[0].Version, replayed.Version)
	assert.JSONEq(t, `{"title":"v2"}`, string(entries[0].Payload))

	deleted, err = queue.Delete(ctx, entries[0])
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestQueueRepository_HasPendingTx(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	queue := NewQueueRepository(db)

	pending, err := queue.HasPendingTx(ctx, db, models.EntityTask, "t1")
	require.NoError(t, err)
	assert.False(t, pending)

	c, _ := models.NewChange(models.EntityTask, models.ActionAdd, "t1", nil, time.Now())
	require.NoError(t, queue.Enqueue(ctx, c))

	pending, err = queue.HasPendingTx(ctx, db, models.EntityTask, "t1")
	require.NoError(t, err)
	assert.True(t, pending)

	pending, err = queue.HasPendingTx(ctx, db, models.EntityReservation, "t1")
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestFeedCacheRepository(t *testing.T) {
	ctx := context.Background()
	cache := NewFeedCacheRepository(newTestDB(t))

	got, err := cache.Get(ctx, "https://example.com/a.ics")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.Put(ctx, CachedFeed{URL: "https://example.com/a.ics", ETag: `"v1"`, Body: []byte("BEGIN:VCALENDAR")}))
	require.NoError(t, cache.Put(ctx, CachedFeed{URL: "https://example.com/a.ics", ETag: `"v2"`, Body: []byte("BEGIN:VCALENDAR\r\n")}))

	got, err = cache.Get(ctx, "https://example.com/a.ics")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `"v2"`, got.ETag)
	assert.Equal(t, "BEGIN:VCALENDAR\r\n", string(got.Body))
}

func TestDB_Reset(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	rec := &queueingRecorder{queue: NewQueueRepository(db), offline: true}
	require.NoError(t, NewReservationRepository(db, rec).Upsert(ctx, sampleReservation()))
	require.NoError(t, NewTaskRepository(db, rec).Add(ctx, sampleTask(models.TaskKindManual, "2025-05-02")))

	require.NoError(t, db.Reset(ctx))

	for _, table := range []string{"reservations", "tasks", "sync_queue"} {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, table)
	}
}
