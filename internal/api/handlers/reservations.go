package handlers

import (
	"net/http"
	"time"

	"github.com/Martyparty1988/Martyai/internal/api/middleware"
	"github.com/Martyparty1988/Martyai/internal/storage"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// ListReservations returns stored reservations, optionally filtered by
// ?property and by an overlap window ?from / ?to (YYYY-MM-DD, to inclusive).
func ListReservations(repo *storage.ReservationRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()
		property := q.Get("property")

		var (
			reservations []models.Reservation
			err          error
		)
		if q.Get("from") != "" || q.Get("to") != "" {
			from, to, perr := parseWindow(q.Get("from"), q.Get("to"))
			if perr != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "from and to must be YYYY-MM-DD")
				return
			}
			reservations, err = repo.ListByDateRange(ctx, from, to)
			if err == nil && property != "" {
				reservations = filterByProperty(reservations, property)
			}
		} else if property != "" {
			reservations, err = repo.ListByProperty(ctx, property)
		} else {
			reservations, err = repo.List(ctx)
		}
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query reservations")
			return
		}

		if reservations == nil {
			reservations = []models.Reservation{}
		}
		writeJSON(w, http.StatusOK, reservations)
	}
}

func parseWindow(from, to string) (time.Time, time.Time, error) {
	start := time.Time{}
	end := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	var err error
	if from != "" {
		if start, err = time.Parse(models.DateLayout, from); err != nil {
			return start, end, err
		}
	}
	if to != "" {
		if end, err = time.Parse(models.DateLayout, to); err != nil {
			return start, end, err
		}
		end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return start, end, nil
}

func filterByProperty(reservations []models.Reservation, property string) []models.Reservation {
	out := reservations[:0]
	for _, r := range reservations {
		if r.Property == property {
			out = append(out, r)
		}
	}
	return out
}
