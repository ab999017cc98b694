// Package commands implements the task operations offered to the chat bot
// and the operator CLI: create a task, mark one done, and summarize a property.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

var (
	ErrUnknownProperty = errors.New("unknown property")
	ErrNoMatch         = errors.New("no matching open task")
	ErrAmbiguous       = errors.New("identifier matches several open tasks")
)

// upcomingLimit caps the reservations listed by QueryTasks.
const upcomingLimit = 5

// TaskStore is the part of the task repository the commands need.
type TaskStore interface {
	Add(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	SetCompleted(ctx context.Context, id string, completed bool) (*models.Task, error)
	ListByCompleted(ctx context.Context, completed bool) ([]models.Task, error)
	ListByPropertyAndDate(ctx context.Context, property, date string) ([]models.Task, error)
}

// ReservationStore is the part of the reservation repository the commands need.
type ReservationStore interface {
	ListByProperty(ctx context.Context, property string) ([]models.Reservation, error)
}

// Assistant suggests a checklist for a new task. It may be nil.
type Assistant interface {
	Checklist(ctx context.Context, title, property string) ([]string, error)
}

// PropertySummary is the answer to a property query.
type PropertySummary struct {
	Property config.Property      `json:"property"`
	Date     string               `json:"date"`
	Tasks    []models.Task        `json:"tasks"`
	Open     int                  `json:"open"`
	Upcoming []models.Reservation `json:"upcoming"`
}

// Service executes bot and CLI commands against the stores.
type Service struct {
	tasks        TaskStore
	reservations ReservationStore
	assistant    Assistant
	properties   map[string]config.Property
	log          logging.Logger
	now          func() time.Time
}

// NewService creates a command service. With no properties configured any
// property key is accepted.
func NewService(tasks TaskStore, reservations ReservationStore, assistant Assistant, properties []config.Property, log logging.Logger) *Service {
	byKey := make(map[string]config.Property, len(properties))
	for _, p := range properties {
		byKey[p.Key] = p
	}
	return &Service{
		tasks:        tasks,
		reservations: reservations,
		assistant:    assistant,
		properties:   byKey,
		log:          log,
		now:          time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateTask adds a manual task for today.
func (s *Service) CreateTask(ctx context.Context, property, title string) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: task title is required", models.ErrInvalid)
	}
	if _, err := s.property(property); err != nil {
		return nil, err
	}

	task := &models.Task{
		Property: property,
		Date:     s.today(),
		Priority: models.PriorityMedium,
		Title:    title,
		Kind:     models.TaskKindManual,
	}
	if s.assistant != nil {
		items, err := s.assistant.Checklist(ctx, title, property)
		if err != nil {
			s.log.Warn(ctx, "assistant checklist unavailable", "title", title, "error", err)
		}
		task.Subtasks = models.NewChecklist(items)
	}

	if err := s.tasks.Add(ctx, task); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	s.log.Info(ctx, "task created by command", "task_id", task.ID, "property", property)
	return task, nil
}

// MarkDone completes the task whose ID equals identifier or, failing that,
// the single open task whose title contains it (case-insensitive). An exact
// title match wins over substring matches.
func (s *Service) MarkDone(ctx context.Context, identifier string) (*models.Task, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: task identifier is required", models.ErrInvalid)
	}

	task, err := s.tasks.GetByID(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("looking up task: %w", err)
	}
	if task == nil {
		if task, err = s.findOpen(ctx, identifier); err != nil {
			return nil, err
		}
	}

	done, err := s.tasks.SetCompleted(ctx, task.ID, true)
	if err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}
	s.log.Info(ctx, "task completed by command", "task_id", done.ID, "identifier", identifier)
	return done, nil
}

func (s *Service) findOpen(ctx context.Context, identifier string) (*models.Task, error) {
	open, err := s.tasks.ListByCompleted(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing open tasks: %w", err)
	}

	needle := strings.ToLower(identifier)
	var matches []models.Task
	for _, t := range open {
		title := strings.ToLower(t.Title)
		if title == needle {
			return &t, nil
		}
		if strings.Contains(title, needle) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, identifier)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %q matches %d tasks", ErrAmbiguous, identifier, len(matches))
	}
}

// QueryTasks summarizes a property's tasks on date (today when empty) and
// its reservations that have not ended yet.
func (s *Service) QueryTasks(ctx context.Context, property, date string) (*PropertySummary, error) {
	p, err := s.property(property)
	if err != nil {
		return nil, err
	}
	if date == "" {
		date = s.today()
	} else if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: bad date %q", models.ErrInvalid, date)
	}

	tasks, err := s.tasks.ListByPropertyAndDate(ctx, property, date)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	reservations, err := s.reservations.ListByProperty(ctx, property)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}

	summary := &PropertySummary{Property: p, Date: date, Tasks: tasks, Upcoming: []models.Reservation{}}
	for _, t := range tasks {
		if !t.Completed {
			summary.Open++
		}
	}

	now := s.now()
	for _, r := range reservations {
		if r.EndDate.After(now) {
			summary.Upcoming = append(summary.Upcoming, r)
		}
	}
	sort.SliceStable(summary.Upcoming, func(i, j int) bool {
		return summary.Upcoming[i].StartDate.Before(summary.Upcoming[j].StartDate)
	})
	if len(summary.Upcoming) > upcomingLimit {
		summary.Upcoming = summary.Upcoming[:upcomingLimit]
	}
	return summary, nil
}

func (s *Service) property(key string) (config.Property, error) {
	if key == "" {
		return config.Property{}, fmt.Errorf("%w: property is required", models.ErrInvalid)
	}
	if len(s.properties) == 0 {
		return config.Property{Key: key, Name: key}, nil
	}
	p, ok := s.properties[key]
	if !ok {
		return config.Property{}, fmt.Errorf("%w: %s", ErrUnknownProperty, key)
	}
	return p, nil
}

func (s *Service) today() string {
	return s.now().UTC().Format(models.DateLayout)
}
