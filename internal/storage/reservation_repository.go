package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// ReservationRepository provides data access for reservations.
type ReservationRepository struct {
	BaseRepository
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(db *DB, recorder ChangeRecorder) *ReservationRepository {
	return &ReservationRepository{
		BaseRepository: NewBaseRepository(db, recorder),
	}
}

const reservationColumns = `id, property, guest_name, start_date, end_date, guest_count,
	description, uid, summary, created_at, updated_at`

// Upsert inserts the reservation or fully replaces the stored one with the
// same ID. CreatedAt of an existing row is preserved.
func (r *ReservationRepository) Upsert(ctx context.Context, res *models.Reservation) error {
	if err := res.Validate(); err != nil {
		return err
	}

	return r.mutate(ctx, func(tx *sql.Tx) ([]models.Change, error) {
		now := r.Now()
		action := models.ActionUpdate

		var createdAt time.Time
		err := tx.QueryRowContext(ctx, `SELECT created_at FROM reservations WHERE id = ?`, res.ID).Scan(&createdAt)
		switch {
		case err == sql.ErrNoRows:
			action = models.ActionAdd
			createdAt = now
		case err != nil:
			return nil, fmt.Errorf("querying reservation: %w", err)
		}

		res.StartDate = res.StartDate.UTC()
		res.EndDate = res.EndDate.UTC()
		res.CreatedAt = createdAt.UTC()
		res.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservations (`+reservationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				property = excluded.property,
				guest_name = excluded.guest_name,
				start_date = excluded.start_date,
				end_date = excluded.end_date,
				guest_count = excluded.guest_count,
				description = excluded.description,
				uid = excluded.uid,
				summary = excluded.summary,
				updated_at = excluded.updated_at
		`,
			res.ID, res.Property, res.GuestName, res.StartDate, res.EndDate, res.GuestCount,
			res.Description, res.UID, res.Summary, res.CreatedAt, res.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("upserting reservation: %w", err)
		}

		change, err := models.NewChange(models.EntityReservation, action, res.ID, res, now)
		if err != nil {
			return nil, fmt.Errorf("encoding reservation change: %w", err)
		}
		return []models.Change{change}, nil
	})
}

// GetByID retrieves a reservation by its ID. It returns nil, nil when absent.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)

	res, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying reservation: %w", err)
	}
	return res, nil
}

// List retrieves all reservations ordered by start date.
func (r *ReservationRepository) List(ctx context.Context) ([]models.Reservation, error) {
	return r.query(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY start_date, id`)
}

// ListByProperty retrieves all reservations of one property.
func (r *ReservationRepository) ListByProperty(ctx context.Context, property string) ([]models.Reservation, error) {
	return r.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE property = ?
		ORDER BY start_date, id
	`, property)
}

// ListByDateRange retrieves every reservation overlapping [start, end].
func (r *ReservationRepository) ListByDateRange(ctx context.Context, start, end time.Time) ([]models.Reservation, error) {
	return r.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE start_date <= ? AND end_date >= ?
		ORDER BY start_date, id
	`, end.UTC(), start.UTC())
}

// Count returns the number of stored reservations.
func (r *ReservationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting reservations: %w", err)
	}
	return n, nil
}

func (r *ReservationRepository) query(ctx context.Context, query string, args ...any) ([]models.Reservation, error) {
	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reservations: %w", err)
	}
	defer rows.Close()

	reservations := []models.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		reservations = append(reservations, *res)
	}
	return reservations, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*models.Reservation, error) {
	var res models.Reservation
	var guestCount sql.NullInt64
	var description sql.NullString

	if err := s.Scan(
		&res.ID, &res.Property, &res.GuestName, &res.StartDate, &res.EndDate, &guestCount,
		&description, &res.UID, &res.Summary, &res.CreatedAt, &res.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if guestCount.Valid {
		n := int(guestCount.Int64)
		res.GuestCount = &n
	}
	if description.Valid {
		res.Description = &description.String
	}
	res.StartDate = res.StartDate.UTC()
	res.EndDate = res.EndDate.UTC()
	return &res, nil
}
