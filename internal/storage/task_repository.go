package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// TaskRepository provides data access for tasks and their checklists.
type TaskRepository struct {
	BaseRepository
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *DB, recorder ChangeRecorder) *TaskRepository {
	return &TaskRepository{
		BaseRepository: NewBaseRepository(db, recorder),
	}
}

const taskColumns = `id, property, date, priority, title, description, kind,
	reservation_id, subtasks, completed, created_at, updated_at`

// Add inserts a new task. An empty ID is generated. A second arrival or
// departure task for the same property and date fails with ErrConflict.
func (r *TaskRepository) Add(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = NewTaskID()
	}
	task.Normalize()
	if err := task.Validate(); err != nil {
		return err
	}

	return r.mutate(ctx, func(tx *sql.Tx) ([]models.Change, error) {
		now := r.Now()
		task.CreatedAt = now
		task.UpdatedAt = now

		subtasks, err := json.Marshal(task.Subtasks)
		if err != nil {
			return nil, fmt.Errorf("encoding subtasks: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			task.ID, task.Property, task.Date, task.Priority, task.Title, task.Description, task.Kind,
			task.ReservationID, string(subtasks), task.Completed, task.CreatedAt, task.UpdatedAt,
		)
		if err != nil {
			return nil, translateWriteError("inserting task", err)
		}

		return taskChange(models.ActionAdd, task)
	})
}

// Update replaces a stored task. Completion is re-derived from the checklist.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	task.Normalize()
	if err := task.Validate(); err != nil {
		return err
	}

	return r.mutate(ctx, func(tx *sql.Tx) ([]models.Change, error) {
		existing, err := r.get(ctx, tx, task.ID)
		if err != nil {
			return nil, err
		}
		task.CreatedAt = existing.CreatedAt
		task.UpdatedAt = r.Now()

		if err := r.save(ctx, tx, task); err != nil {
			return nil, err
		}
		return taskChange(models.ActionUpdate, task)
	})
}

// Delete removes a task by ID.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	return r.mutate(ctx, func(tx *sql.Tx) ([]models.Change, error) {
		result, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("deleting task: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
		}

		change, err := models.NewChange(models.EntityTask, models.ActionDelete, id, map[string]string{"id": id}, r.Now())
		if err != nil {
			return nil, err
		}
		return []models.Change{change}, nil
	})
}

// SetCompleted marks the task and, by cascade, all of its subtasks.
func (r *TaskRepository) SetCompleted(ctx context.Context, id string, completed bool) (*models.Task, error) {
	return r.modify(ctx, id, func(task *models.Task) error {
		task.SetCompleted(completed)
		return nil
	})
}

// SetSubtaskCompleted marks one subtask; the task becomes complete exactly
// when every subtask is.
func (r *TaskRepository) SetSubtaskCompleted(ctx context.Context, taskID, subtaskID string, completed bool) (*models.Task, error) {
	return r.modify(ctx, taskID, func(task *models.Task) error {
		if !task.SetSubtaskCompleted(subtaskID, completed) {
			return fmt.Errorf("subtask %s of task %s: %w", subtaskID, taskID, models.ErrNotFound)
		}
		return nil
	})
}

func (r *TaskRepository) modify(ctx context.Context, id string, fn func(*models.Task) error) (*models.Task, error) {
	var updated *models.Task

	err := r.mutate(ctx, func(tx *sql.Tx) ([]models.Change, error) {
		task, err := r.get(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(task); err != nil {
			return nil, err
		}
		task.UpdatedAt = r.Now()

		if err := r.save(ctx, tx, task); err != nil {
			return nil, err
		}
		updated = task
		return taskChange(models.ActionUpdate, task)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetByID retrieves a task by its ID. It returns nil, nil when absent.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	task, err := r.get(ctx, r.DB(), id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return task, err
}

// List retrieves all tasks ordered by date.
func (r *TaskRepository) List(ctx context.Context) ([]models.Task, error) {
	return r.query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY date, created_at, id`)
}

// ListByProperty retrieves the tasks of one property.
func (r *TaskRepository) ListByProperty(ctx context.Context, property string) ([]models.Task, error) {
	return r.query(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE property = ?
		ORDER BY date, created_at, id
	`, property)
}

// ListByDate retrieves the tasks of one calendar day (YYYY-MM-DD).
func (r *TaskRepository) ListByDate(ctx context.Context, date string) ([]models.Task, error) {
	return r.query(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE date = ?
		ORDER BY property, created_at, id
	`, date)
}

// ListByPropertyAndDate retrieves the tasks of one property on one day.
func (r *TaskRepository) ListByPropertyAndDate(ctx context.Context, property, date string) ([]models.Task, error) {
	return r.query(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE property = ? AND date = ?
		ORDER BY created_at, id
	`, property, date)
}

// ListByCompleted retrieves open or finished tasks.
func (r *TaskRepository) ListByCompleted(ctx context.Context, completed bool) ([]models.Task, error) {
	return r.query(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE completed = ?
		ORDER BY date, created_at, id
	`, completed)
}

// Count returns the number of stored tasks.
func (r *TaskRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return n, nil
}

func (r *TaskRepository) get(ctx context.Context, q Queryable, id string) (*models.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) save(ctx context.Context, q Queryable, task *models.Task) error {
	subtasks, err := json.Marshal(task.Subtasks)
	if err != nil {
		return fmt.Errorf("encoding subtasks: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		UPDATE tasks SET
			property = ?, date = ?, priority = ?, title = ?, description = ?, kind = ?,
			reservation_id = ?, subtasks = ?, completed = ?, updated_at = ?
		WHERE id = ?
	`,
		task.Property, task.Date, task.Priority, task.Title, task.Description, task.Kind,
		task.ReservationID, string(subtasks), task.Completed, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return translateWriteError("updating task", err)
	}
	return nil
}

func (r *TaskRepository) query(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanTask(s rowScanner) (*models.Task, error) {
	var task models.Task
	var reservationID sql.NullString
	var subtasks string

	if err := s.Scan(
		&task.ID, &task.Property, &task.Date, &task.Priority, &task.Title, &task.Description, &task.Kind,
		&reservationID, &subtasks, &task.Completed, &task.CreatedAt, &task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if reservationID.Valid {
		task.ReservationID = &reservationID.String
	}
	if err := json.Unmarshal([]byte(subtasks), &task.Subtasks); err != nil {
		return nil, fmt.Errorf("decoding subtasks of %s: %w", task.ID, err)
	}
	if task.Subtasks == nil {
		task.Subtasks = []models.Subtask{}
	}
	return &task, nil
}

func taskChange(action string, task *models.Task) ([]models.Change, error) {
	change, err := models.NewChange(models.EntityTask, action, task.ID, task, task.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("encoding task change: %w", err)
	}
	return []models.Change{change}, nil
}

// translateWriteError maps unique-constraint violations to ErrConflict.
func translateWriteError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: %w", op, models.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
