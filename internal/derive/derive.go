// Package derive turns reservations into the arrival and departure
// housekeeping tasks of each stay.
package derive

import (
	"fmt"
	"strings"
	"time"

	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// Title prefixes of derived tasks. Tasks created before Kind was recorded
// are recognised by these.
const (
	ArrivalPrefix   = "Arrival prep: "
	DeparturePrefix = "Departure cleaning: "
)

// Starter checklists used when no assistant is configured or it fails.
var (
	ArrivalChecklist = []string{
		"Cleanliness check",
		"Prepare linens and towels",
		"Equipment check",
	}
	DepartureChecklist = []string{
		"Strip linens",
		"Replace towels",
		"Clean bathroom",
		"Clean kitchen",
		"Vacuum and mop",
	}
)

// CheckInDate is the UTC calendar date of the reservation start.
func CheckInDate(r models.Reservation) string {
	return r.StartDate.UTC().Format(models.DateLayout)
}

// CheckOutDate is the UTC calendar date of the last night: EndDate is
// exclusive, so the cleaning happens one day earlier. A stay shorter than
// a day is cleaned on its check-in date.
func CheckOutDate(r models.Reservation) string {
	out := r.EndDate.UTC().AddDate(0, 0, -1)
	in := r.StartDate.UTC()
	if dayOf(out).Before(dayOf(in)) {
		return in.Format(models.DateLayout)
	}
	return out.Format(models.DateLayout)
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Plan returns the arrival and departure tasks r still needs. existing are
// the stored tasks of r's property on its check-in and check-out dates; a
// kind already present on a date is not planned again, whichever
// reservation created it. newID generates task IDs.
func Plan(r models.Reservation, existing []models.Task, now time.Time, newID func() string) []models.Task {
	var planned []models.Task

	checkIn := CheckInDate(r)
	checkOut := CheckOutDate(r)

	if !hasKind(existing, r.Property, checkIn, models.TaskKindArrival) {
		planned = append(planned, build(r, checkIn, models.TaskKindArrival, now, newID))
	}
	if !hasKind(existing, r.Property, checkOut, models.TaskKindDeparture) {
		planned = append(planned, build(r, checkOut, models.TaskKindDeparture, now, newID))
	}

	return planned
}

func hasKind(tasks []models.Task, property, date, kind string) bool {
	prefix := prefixFor(kind)
	for _, t := range tasks {
		if t.Property != property || t.Date != date {
			continue
		}
		if t.Kind == kind || strings.HasPrefix(t.Title, prefix) {
			return true
		}
	}
	return false
}

func prefixFor(kind string) string {
	if kind == models.TaskKindArrival {
		return ArrivalPrefix
	}
	return DeparturePrefix
}

func build(r models.Reservation, date, kind string, now time.Time, newID func() string) models.Task {
	reservationID := r.ID
	t := models.Task{
		ID:            newID(),
		Property:      r.Property,
		Date:          date,
		Priority:      models.PriorityHigh,
		Title:         prefixFor(kind) + r.GuestName,
		Kind:          kind,
		ReservationID: &reservationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if kind == models.TaskKindArrival {
		t.Description = "Check-in of " + r.GuestName
		if r.GuestCount != nil {
			t.Description += fmt.Sprintf(" (%d guests)", *r.GuestCount)
		}
		t.Subtasks = models.NewChecklist(ArrivalChecklist)
	} else {
		t.Description = fmt.Sprintf("Check-out of %s after %d nights", r.GuestName, r.Nights())
		t.Subtasks = models.NewChecklist(DepartureChecklist)
	}
	return t
}

// mergeChecklist appends extra items not already on the checklist.
func mergeChecklist(subtasks []models.Subtask, extra []string) []models.Subtask {
	seen := make(map[string]bool, len(subtasks)+len(extra))
	for _, s := range subtasks {
		seen[strings.ToLower(strings.TrimSpace(s.Text))] = true
	}

	texts := make([]string, 0, len(subtasks)+len(extra))
	for _, s := range subtasks {
		texts = append(texts, s.Text)
	}
	for _, item := range extra {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" || seen[key] {
			continue
		}
		seen[key] = true
		texts = append(texts, item)
	}
	return models.NewChecklist(texts)
}
