package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// QueueRepository is the durable FIFO of changes awaiting remote replay.
type QueueRepository struct {
	db *DB
}

// NewQueueRepository creates a new sync queue repository.
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue appends a change. A pending entry with the same entity type,
// action and entity ID is refreshed in place, keeps its position and gets
// a new version.
func (r *QueueRepository) Enqueue(ctx context.Context, c models.Change) error {
	return r.EnqueueTx(ctx, r.db, c)
}

// EnqueueTx is Enqueue on an open transaction.
func (r *QueueRepository) EnqueueTx(ctx context.Context, q Queryable, c models.Change) error {
	var payload *string
	if c.Payload != nil {
		s := string(c.Payload)
		payload = &s
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_queue (entity_type, action, entity_id, payload, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, action, entity_id) DO UPDATE SET
			payload = excluded.payload,
			timestamp = excluded.timestamp,
			version = sync_queue.version + 1
	`, c.EntityType, c.Action, c.EntityID, payload, c.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("enqueueing change: %w", err)
	}
	return nil
}

// List returns every pending entry in insertion order.
func (r *QueueRepository) List(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, entity_type, action, entity_id, payload, timestamp, attempts, last_error, version
		FROM sync_queue ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sync queue: %w", err)
	}
	defer rows.Close()

	entries := []models.QueueEntry{}
	for rows.Next() {
		var e models.QueueEntry
		var payload, lastError sql.NullString
		if err := rows.Scan(
			&e.Seq, &e.EntityType, &e.Action, &e.EntityID, &payload,
			&e.Timestamp, &e.Attempts, &lastError, &e.Version,
		); err != nil {
			return nil, fmt.Errorf("scanning sync queue entry: %w", err)
		}
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		if lastError.Valid {
			e.LastError = &lastError.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HasPendingTx reports whether the queue holds an entry for the entity.
func (r *QueueRepository) HasPendingTx(ctx context.Context, q Queryable, entityType, entityID string) (bool, error) {
	var pending bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM sync_queue WHERE entity_type = ? AND entity_id = ?)
	`, entityType, entityID).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("checking sync queue: %w", err)
	}
	return pending, nil
}

// Delete removes a replayed entry. An entry refreshed since it was listed
// has a newer version and is kept; Delete then reports false.
func (r *QueueRepository) Delete(ctx context.Context, entry models.QueueEntry) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_queue WHERE seq = ? AND version = ?
	`, entry.Seq, entry.Version)
	if err != nil {
		return false, fmt.Errorf("deleting sync queue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting sync queue entry: %w", err)
	}
	return n > 0, nil
}

// MarkFailed records a failed replay attempt; the entry stays queued.
func (r *QueueRepository) MarkFailed(ctx context.Context, seq int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET attempts = attempts + 1, last_error = ? WHERE seq = ?
	`, reason, seq)
	if err != nil {
		return fmt.Errorf("marking sync queue entry failed: %w", err)
	}
	return nil
}

// Count returns the number of pending entries.
func (r *QueueRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sync queue: %w", err)
	}
	return n, nil
}
