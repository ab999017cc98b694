// Package models contains the domain models for the application.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by the stores and their callers.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid record")
)

// DefaultGuestName is used when a feed summary names no guest.
const DefaultGuestName = "Guest"

// Reservation is one booking parsed from a property's calendar feed.
// EndDate is exclusive: the guest checks out on the day before it.
type Reservation struct {
	ID          string    `json:"id"`
	Property    string    `json:"property"`
	GuestName   string    `json:"guest_name"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	GuestCount  *int      `json:"guest_count,omitempty"`
	Description *string   `json:"description,omitempty"`
	UID         string    `json:"uid,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the required fields and the start < end invariant.
func (r *Reservation) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: reservation id is required", ErrInvalid)
	case r.Property == "":
		return fmt.Errorf("%w: reservation %s has no property", ErrInvalid, r.ID)
	case r.StartDate.IsZero() || r.EndDate.IsZero():
		return fmt.Errorf("%w: reservation %s is missing a date", ErrInvalid, r.ID)
	case !r.StartDate.Before(r.EndDate):
		return fmt.Errorf("%w: reservation %s starts at or after its end", ErrInvalid, r.ID)
	}
	return nil
}

// Nights returns the number of calendar nights covered.
func (r *Reservation) Nights() int {
	start := time.Date(r.StartDate.Year(), r.StartDate.Month(), r.StartDate.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(r.EndDate.Year(), r.EndDate.Month(), r.EndDate.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}
