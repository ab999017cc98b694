package derive

import (
	"sort"
	"time"

	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// Overlap is a double booking: two reservations of one property whose stays
// intersect.
type Overlap struct {
	Property     string    `json:"property"`
	First        string    `json:"first_reservation_id"`
	Second       string    `json:"second_reservation_id"`
	OverlapStart time.Time `json:"overlap_start"`
	OverlapEnd   time.Time `json:"overlap_end"`
}

// FindOverlaps returns every pair of same-property reservations whose
// [StartDate, EndDate) ranges intersect. A checkout and a check-in on the
// same instant do not overlap.
func FindOverlaps(reservations []models.Reservation) []Overlap {
	byProperty := make(map[string][]models.Reservation)
	for _, r := range reservations {
		byProperty[r.Property] = append(byProperty[r.Property], r)
	}

	properties := make([]string, 0, len(byProperty))
	for p := range byProperty {
		properties = append(properties, p)
	}
	sort.Strings(properties)

	var overlaps []Overlap
	for _, p := range properties {
		stays := byProperty[p]
		sort.SliceStable(stays, func(i, j int) bool { return stays[i].StartDate.Before(stays[j].StartDate) })

		for i := range stays {
			for j := i + 1; j < len(stays); j++ {
				// Sorted by start: later stays cannot overlap stays[i] either.
				if !stays[j].StartDate.Before(stays[i].EndDate) {
					break
				}

				overlapEnd := stays[i].EndDate
				if stays[j].EndDate.Before(overlapEnd) {
					overlapEnd = stays[j].EndDate
				}
				overlaps = append(overlaps, Overlap{
					Property:     p,
					First:        stays[i].ID,
					Second:       stays[j].ID,
					OverlapStart: stays[j].StartDate,
					OverlapEnd:   overlapEnd,
				})
			}
		}
	}
	return overlaps
}
