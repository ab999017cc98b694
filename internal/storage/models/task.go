package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format of Task.Date.
const DateLayout = "2006-01-02"

// Priority constants
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task kind constants. Arrival and departure tasks are derived from
// reservations; at most one of each exists per property and date.
const (
	TaskKindArrival   = "arrival"
	TaskKindDeparture = "departure"
	TaskKindRecurring = "recurring"
	TaskKindManual    = "manual"
)

// Task is a housekeeping job for one property on one day.
type Task struct {
	ID            string    `json:"id"`
	Property      string    `json:"property"`
	Date          string    `json:"date"`
	Priority      string    `json:"priority"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Kind          string    `json:"kind"`
	ReservationID *string   `json:"reservation_id,omitempty"`
	Subtasks      []Subtask `json:"subtasks"`
	Completed     bool      `json:"completed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Subtask is one checklist item of a task.
type Subtask struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// SubtaskID returns the conventional ID of the i-th (zero-based) checklist item.
func SubtaskID(i int) string {
	return fmt.Sprintf("sub-%d", i+1)
}

// NewChecklist builds unchecked subtasks from item texts.
func NewChecklist(items []string) []Subtask {
	subtasks := make([]Subtask, 0, len(items))
	for i, text := range items {
		subtasks = append(subtasks, Subtask{ID: SubtaskID(i), Text: text})
	}
	return subtasks
}

// Validate checks required fields and enumerations.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalid)
	}
	if t.Property == "" {
		return fmt.Errorf("%w: task %s has no property", ErrInvalid, t.ID)
	}
	if t.Title == "" {
		return fmt.Errorf("%w: task %s has no title", ErrInvalid, t.ID)
	}
	if _, err := time.Parse(DateLayout, t.Date); err != nil {
		return fmt.Errorf("%w: task %s has bad date %q", ErrInvalid, t.ID, t.Date)
	}
	switch t.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return fmt.Errorf("%w: task %s has unknown priority %q", ErrInvalid, t.ID, t.Priority)
	}
	switch t.Kind {
	case TaskKindArrival, TaskKindDeparture, TaskKindRecurring, TaskKindManual:
	default:
		return fmt.Errorf("%w: task %s has unknown kind %q", ErrInvalid, t.ID, t.Kind)
	}
	return nil
}

// Normalize fills defaults, assigns missing subtask IDs and re-derives
// Completed from the checklist. With at least one subtask the task is
// complete exactly when every subtask is.
func (t *Task) Normalize() {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Kind == "" {
		t.Kind = TaskKindManual
	}
	if t.Subtasks == nil {
		t.Subtasks = []Subtask{}
	}

	used := make(map[string]bool, len(t.Subtasks))
	for _, s := range t.Subtasks {
		if s.ID != "" {
			used[s.ID] = true
		}
	}
	next := 0
	for i := range t.Subtasks {
		if t.Subtasks[i].ID != "" {
			continue
		}
		for used[SubtaskID(next)] {
			next++
		}
		t.Subtasks[i].ID = SubtaskID(next)
		used[t.Subtasks[i].ID] = true
	}

	if len(t.Subtasks) > 0 {
		t.Completed = t.allSubtasksDone()
	}
}

// SetCompleted marks the task and every subtask.
func (t *Task) SetCompleted(completed bool) {
	t.Completed = completed
	for i := range t.Subtasks {
		t.Subtasks[i].Completed = completed
	}
}

// SetSubtaskCompleted marks one subtask and recomputes the task.
// It reports false when no subtask has the given ID.
func (t *Task) SetSubtaskCompleted(subtaskID string, completed bool) bool {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == subtaskID {
			t.Subtasks[i].Completed = completed
			t.Completed = t.allSubtasksDone()
			return true
		}
	}
	return false
}

func (t *Task) allSubtasksDone() bool {
	for _, s := range t.Subtasks {
		if !s.Completed {
			return false
		}
	}
	return true
}
