package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// Queryable represents a database connection that can execute queries.
// Both *sql.DB and *sql.Tx implement this interface.
type Queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ChangeRecorder observes every committed store mutation.
//
// Capture runs inside the mutation's transaction and reports whether the
// change was written to the sync queue. Changes that were not queued are
// handed to Publish after the transaction commits.
type ChangeRecorder interface {
	Capture(ctx context.Context, q Queryable, c models.Change) (bool, error)
	Publish(ctx context.Context, c models.Change)
}

// BaseRepository provides common functionality for all repositories.
type BaseRepository struct {
	db       *DB
	recorder ChangeRecorder
	now      func() time.Time
}

// NewBaseRepository creates a new base repository with the given database connection.
func NewBaseRepository(db *DB, recorder ChangeRecorder) BaseRepository {
	return BaseRepository{db: db, recorder: recorder, now: time.Now}
}

// DB returns the underlying database connection.
func (r *BaseRepository) DB() *DB {
	return r.db
}

// Now returns the current time in UTC for database timestamps.
func (r *BaseRepository) Now() time.Time {
	return r.now().UTC()
}

// SetClock replaces the timestamp source.
func (r *BaseRepository) SetClock(now func() time.Time) {
	r.now = now
}

// mutate runs fn in a transaction and records the changes it returns.
func (r *BaseRepository) mutate(ctx context.Context, fn func(tx *sql.Tx) ([]models.Change, error)) error {
	var live []models.Change

	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		changes, err := fn(tx)
		if err != nil {
			return err
		}
		if r.recorder == nil {
			return nil
		}
		for _, c := range changes {
			queued, err := r.recorder.Capture(ctx, tx, c)
			if err != nil {
				return fmt.Errorf("recording %s %s: %w", c.Action, c.EntityType, err)
			}
			if !queued {
				live = append(live, c)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, c := range live {
		r.recorder.Publish(ctx, c)
	}
	return nil
}

// NewTaskID returns a collision-free task ID. UUIDv7 embeds the creation
// time in milliseconds followed by random bits.
func NewTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "task_" + uuid.NewString()
	}
	return "task_" + id.String()
}
