package coordinator

import (
	"context"

	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/remote"
	"github.com/Martyparty1988/Martyai/internal/storage"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// Queue is the durable sync queue.
type Queue interface {
	Enqueue(ctx context.Context, c models.Change) error
	EnqueueTx(ctx context.Context, q storage.Queryable, c models.Change) error
	HasPendingTx(ctx context.Context, q storage.Queryable, entityType, entityID string) (bool, error)
	List(ctx context.Context) ([]models.QueueEntry, error)
	Delete(ctx context.Context, entry models.QueueEntry) (bool, error)
	MarkFailed(ctx context.Context, seq int64, reason string) error
	Count(ctx context.Context) (int, error)
}

// Journal records store mutations. While offline a change is queued in
// the mutation's own transaction; while online it is submitted after the
// commit and queued only if that submit fails. A change to an entity that
// still has a queued entry is queued behind it, online or not.
type Journal struct {
	monitor   *Monitor
	queue     Queue
	submitter remote.Submitter
	notifier  Notifier
	log       logging.Logger
}

// NewJournal creates a journal. notifier may be nil.
func NewJournal(monitor *Monitor, queue Queue, submitter remote.Submitter, notifier Notifier, log logging.Logger) *Journal {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Journal{
		monitor:   monitor,
		queue:     queue,
		submitter: submitter,
		notifier:  notifier,
		log:       log,
	}
}

// Capture implements storage.ChangeRecorder.
func (j *Journal) Capture(ctx context.Context, q storage.Queryable, c models.Change) (bool, error) {
	if j.monitor.Online() {
		pending, err := j.queue.HasPendingTx(ctx, q, c.EntityType, c.EntityID)
		if err != nil {
			return false, err
		}
		if !pending {
			return false, nil
		}
	}
	if err := j.queue.EnqueueTx(ctx, q, c); err != nil {
		return false, err
	}
	j.log.Debug(ctx, "change queued", "entity", c.EntityType, "id", c.EntityID, "action", c.Action)
	j.notifier.ChangeRecorded(c)
	return true, nil
}

// Publish implements storage.ChangeRecorder. The change is already
// committed, so a failed submit is queued even if ctx is done.
func (j *Journal) Publish(ctx context.Context, c models.Change) {
	defer j.notifier.ChangeRecorded(c)

	err := j.submitter.Submit(ctx, models.QueueEntry{Change: c})
	if err == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	j.log.Warn(ctx, "live submit failed, queueing change", "entity", c.EntityType, "id", c.EntityID, "error", err)
	if err := j.queue.Enqueue(ctx, c); err != nil {
		j.log.Error(ctx, "queueing change failed", "entity", c.EntityType, "id", c.EntityID, "error", err)
	}
}
