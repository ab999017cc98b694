package derive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// recurrenceAnchor is the DTSTART of rules that carry none; a fixed Monday
// keeps weekly rules on the same weekday between runs.
var recurrenceAnchor = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Occurrences returns the UTC calendar dates in [from, to] on which rule
// fires. rule is an RRULE value, optionally preceded by a DTSTART line.
func Occurrences(rule string, from, to time.Time) ([]string, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("parsing rrule %q: %w", rule, err)
	}
	if r.OrigOptions.Dtstart.IsZero() {
		r.DTStart(recurrenceAnchor)
	}

	var set rrule.Set
	set.RRule(r)

	start := dayOf(from.UTC())
	end := dayOf(to.UTC()).Add(24*time.Hour - time.Second)

	var dates []string
	seen := map[string]bool{}
	for _, t := range set.Between(start, end, true) {
		d := t.UTC().Format(models.DateLayout)
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	return dates, nil
}

// ExpandRecurring builds one task per rule occurrence in [from, to].
// A rule that does not parse is returned as an error after the others
// have been expanded.
func ExpandRecurring(rules []config.RecurringTask, from, to, now time.Time, newID func() string) ([]models.Task, error) {
	var tasks []models.Task
	var errs []error

	for _, rule := range rules {
		dates, err := Occurrences(rule.RRule, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("recurring task %q: %w", rule.Title, err))
			continue
		}

		priority := rule.Priority
		if priority == "" {
			priority = models.PriorityMedium
		}
		for _, date := range dates {
			tasks = append(tasks, models.Task{
				ID:        newID(),
				Property:  rule.Property,
				Date:      date,
				Priority:  priority,
				Title:     rule.Title,
				Kind:      models.TaskKindRecurring,
				Subtasks:  models.NewChecklist(rule.Checklist),
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}

	return tasks, errors.Join(errs...)
}

// RunRecurring adds recurring tasks for [from, to] that do not exist yet.
// A recurring task is identified by property, date and title.
func (e *Engine) RunRecurring(ctx context.Context, rules []config.RecurringTask, from, to time.Time) (Result, error) {
	var result Result

	planned, expandErr := ExpandRecurring(rules, from, to, e.now().UTC(), e.newID)
	if expandErr != nil {
		e.log.Warn(ctx, "skipping invalid recurring rules", "error", expandErr)
	}

	for _, task := range planned {
		existing, err := e.tasks.ListByPropertyAndDate(ctx, task.Property, task.Date)
		if err != nil {
			return result, fmt.Errorf("listing tasks for %s on %s: %w", task.Property, task.Date, err)
		}
		if hasRecurring(existing, task.Title) {
			result.Skipped++
			continue
		}
		if err := e.tasks.Add(ctx, &task); err != nil {
			return result, fmt.Errorf("adding recurring task %q: %w", task.Title, err)
		}
		result.Created++
	}

	return result, nil
}

func hasRecurring(tasks []models.Task, title string) bool {
	for _, t := range tasks {
		if t.Kind == models.TaskKindRecurring && t.Title == title {
			return true
		}
	}
	return false
}
