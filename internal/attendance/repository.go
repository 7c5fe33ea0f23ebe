package attendance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/database"
)

// Repository is the PostgreSQL attendance store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpdateRegistration implements Store with SELECT ... FOR UPDATE so a second
// concurrent caller blocks until the first commits and then sees its result.
func (r *Repository) UpdateRegistration(ctx context.Context, id uuid.UUID, fn func(t *Transition) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var reg models.Registration
		const lock = `SELECT id, event_id, user_id, registered_at, ticket_type, is_checked_in, checked_in_at, checked_out_at
			FROM registrations WHERE id = $1 FOR UPDATE`
		err := tx.QueryRow(ctx, lock, id).Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.RegisteredAt, &reg.TicketType,
			&reg.IsCheckedIn, &reg.CheckedInAt, &reg.CheckedOutAt)
		if database.IsNoRows(err) {
			return apperr.NotFound("registration not found")
		}
		if err != nil {
			return fmt.Errorf("lock registration: %w", err)
		}

		var att *models.Attendance
		var a models.Attendance
		const load = `SELECT id, registration_id, checked_in_at, checked_in_by, checked_out_at, checked_out_by
			FROM attendances WHERE registration_id = $1`
		err = tx.QueryRow(ctx, load, id).Scan(&a.ID, &a.RegistrationID, &a.CheckedInAt, &a.CheckedInBy, &a.CheckedOutAt, &a.CheckedOutBy)
		switch {
		case err == nil:
			att = &a
		case !database.IsNoRows(err):
			return fmt.Errorf("load attendance: %w", err)
		}

		t := &Transition{Registration: &reg, Attendance: att}
		if err := fn(t); err != nil {
			return err
		}

		const update = `UPDATE registrations SET is_checked_in = $1, checked_in_at = $2, checked_out_at = $3 WHERE id = $4`
		if _, err := tx.Exec(ctx, update, reg.IsCheckedIn, reg.CheckedInAt, reg.CheckedOutAt, reg.ID); err != nil {
			return fmt.Errorf("update registration: %w", err)
		}

		if t.Attendance == nil {
			if att != nil {
				if _, err := tx.Exec(ctx, `DELETE FROM attendances WHERE registration_id = $1`, id); err != nil {
					return fmt.Errorf("delete attendance: %w", err)
				}
			}
			return nil
		}
		n := t.Attendance
		const upsert = `INSERT INTO attendances (id, registration_id, checked_in_at, checked_in_by, checked_out_at, checked_out_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (registration_id) DO UPDATE SET
				checked_in_at = EXCLUDED.checked_in_at,
				checked_in_by = EXCLUDED.checked_in_by,
				checked_out_at = EXCLUDED.checked_out_at,
				checked_out_by = EXCLUDED.checked_out_by`
		if _, err := tx.Exec(ctx, upsert, n.ID, id, n.CheckedInAt, n.CheckedInBy, n.CheckedOutAt, n.CheckedOutBy); err != nil {
			return fmt.Errorf("upsert attendance: %w", err)
		}
		return nil
	})
}

// Counts returns pending, checked-in and checked-out totals.
func (r *Repository) Counts(ctx context.Context, eventID *uuid.UUID) (Counts, error) {
	const q = `SELECT
			COUNT(*) FILTER (WHERE checked_in_at IS NULL),
			COUNT(*) FILTER (WHERE is_checked_in AND checked_out_at IS NULL),
			COUNT(*) FILTER (WHERE checked_out_at IS NOT NULL)
		FROM registrations
		WHERE ($1::uuid IS NULL OR event_id = $1)`
	var c Counts
	if err := r.pool.QueryRow(ctx, q, eventID).Scan(&c.Pending, &c.CheckedIn, &c.CheckedOut); err != nil {
		return Counts{}, fmt.Errorf("attendance counts: %w", err)
	}
	return c, nil
}
