package calendar

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// ExportTasks renders tasks as an iCalendar document of all-day events so
// staff can subscribe to the housekeeping schedule.
func ExportTasks(tasks []models.Task, name string, now time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//Villa Housekeeping//Task Export//EN")
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, t := range tasks {
		day, err := time.Parse(models.DateLayout, t.Date)
		if err != nil {
			return "", fmt.Errorf("task %s: bad date %q", t.ID, t.Date)
		}

		ev := cal.AddEvent(t.ID + "@housekeeping")
		ev.SetDtStampTime(now.UTC())
		ev.SetCreatedTime(t.CreatedAt.UTC())
		ev.SetModifiedAt(t.UpdatedAt.UTC())
		ev.SetAllDayStartAt(day)
		ev.SetAllDayEndAt(day.AddDate(0, 0, 1))
		ev.SetSummary(t.Title)
		ev.SetDescription(describeTask(t))
		ev.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(t.Kind))
		ev.SetProperty(ical.ComponentPropertyLocation, t.Property)
		ev.SetProperty(ical.ComponentPropertyPriority, icalPriority(t.Priority))
		if t.Completed {
			ev.SetStatus(ical.ObjectStatusCompleted)
		} else {
			ev.SetStatus(ical.ObjectStatusConfirmed)
		}
	}

	return cal.Serialize(), nil
}

func describeTask(t models.Task) string {
	var b strings.Builder
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	for _, s := range t.Subtasks {
		if s.Completed {
			b.WriteString("[x] ")
		} else {
			b.WriteString("[ ] ")
		}
		b.WriteString(s.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// icalPriority maps to RFC 5545 PRIORITY (1 highest, 9 lowest).
func icalPriority(p string) string {
	switch p {
	case models.PriorityHigh:
		return "1"
	case models.PriorityLow:
		return "9"
	default:
		return "5"
	}
}

var csvHeader = []string{
	"id", "title", "property", "date", "priority", "description",
	"subtasks", "completed", "created_at", "updated_at",
}

// ExportTasksCSV writes tasks as CSV, one row per task. names maps
// property keys to display names; unknown keys are written as is.
func ExportTasksCSV(w io.Writer, tasks []models.Task, names map[string]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, t := range tasks {
		property := t.Property
		if name, ok := names[t.Property]; ok && name != "" {
			property = name
		}
		subtasks := make([]string, 0, len(t.Subtasks))
		for _, st := range t.Subtasks {
			if st.Completed {
				subtasks = append(subtasks, st.Text+" (done)")
			} else {
				subtasks = append(subtasks, st.Text)
			}
		}
		completed := "no"
		if t.Completed {
			completed = "yes"
		}

		err := cw.Write([]string{
			t.ID, t.Title, property, t.Date, t.Priority, t.Description,
			strings.Join(subtasks, "; "), completed,
			t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("writing task %s: %w", t.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
