package derive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/storage"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// TaskStore is the part of the task store the engine needs.
type TaskStore interface {
	ListByPropertyAndDate(ctx context.Context, property, date string) ([]models.Task, error)
	Add(ctx context.Context, task *models.Task) error
}

// Assistant suggests checklist items for a task. It may fail.
type Assistant interface {
	Checklist(ctx context.Context, title, property string) ([]string, error)
}

// Result counts what a derivation run did.
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Engine creates the missing arrival and departure tasks of reservations.
type Engine struct {
	tasks     TaskStore
	assistant Assistant
	log       logging.Logger
	now       func() time.Time
	newID     func() string
}

// NewEngine creates a derivation engine. assistant may be nil.
func NewEngine(tasks TaskStore, assistant Assistant, log logging.Logger) *Engine {
	return &Engine{
		tasks:     tasks,
		assistant: assistant,
		log:       log,
		now:       time.Now,
		newID:     storage.NewTaskID,
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Run derives tasks for every reservation in order. Existing tasks are read
// right before each reservation is planned, so reservations sharing a day
// share its task. Running twice over the same reservations creates nothing
// the second time.
func (e *Engine) Run(ctx context.Context, reservations []models.Reservation) (Result, error) {
	var result Result

	for _, r := range reservations {
		existing, err := e.existing(ctx, r)
		if err != nil {
			return result, err
		}

		for _, task := range Plan(r, existing, e.now().UTC(), e.newID) {
			e.enrich(ctx, &task)

			if err := e.tasks.Add(ctx, &task); err != nil {
				if errors.Is(err, models.ErrConflict) {
					e.log.Error(ctx, "derived task already exists", "property", task.Property, "date", task.Date, "kind", task.Kind)
					result.Skipped++
					continue
				}
				return result, fmt.Errorf("adding %s task for %s: %w", task.Kind, r.ID, err)
			}
			result.Created++
		}
	}

	if result.Created > 0 {
		e.log.Info(ctx, "derived tasks", "created", result.Created, "reservations", len(reservations))
	}
	return result, nil
}

func (e *Engine) existing(ctx context.Context, r models.Reservation) ([]models.Task, error) {
	checkIn, checkOut := CheckInDate(r), CheckOutDate(r)

	tasks, err := e.tasks.ListByPropertyAndDate(ctx, r.Property, checkIn)
	if err != nil {
		return nil, fmt.Errorf("listing tasks for %s on %s: %w", r.Property, checkIn, err)
	}
	if checkOut == checkIn {
		return tasks, nil
	}

	more, err := e.tasks.ListByPropertyAndDate(ctx, r.Property, checkOut)
	if err != nil {
		return nil, fmt.Errorf("listing tasks for %s on %s: %w", r.Property, checkOut, err)
	}
	return append(tasks, more...), nil
}

// enrich appends assistant suggestions to the starter checklist. Any
// failure keeps the starter checklist.
func (e *Engine) enrich(ctx context.Context, task *models.Task) {
	if e.assistant == nil {
		return
	}

	items, err := e.assistant.Checklist(ctx, task.Title, task.Property)
	if err != nil {
		e.log.Warn(ctx, "checklist suggestion failed", "task", task.Title, "error", err)
		return
	}
	if len(items) == 0 {
		return
	}
	task.Subtasks = mergeChecklist(task.Subtasks, items)
}
