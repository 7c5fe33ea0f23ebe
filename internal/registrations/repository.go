package registrations

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

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a registration. The event row is locked so the capacity check
// and the insert see the same registration count.
func (r *Repository) Create(ctx context.Context, reg *models.Registration, attendee models.User) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const upsertUser = `INSERT INTO users (id, email, full_name, role) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				email = EXCLUDED.email,
				full_name = CASE WHEN EXCLUDED.full_name = '' THEN users.full_name ELSE EXCLUDED.full_name END`
		role := attendee.Role
		if role == "" {
			role = models.RoleParticipant
		}
		if _, err := tx.Exec(ctx, upsertUser, attendee.ID, attendee.Email, attendee.FullName, string(role)); err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("email already belongs to another user")
			}
			return fmt.Errorf("upsert user: %w", err)
		}

		var capacity *int
		err := tx.QueryRow(ctx, `SELECT capacity FROM events WHERE id = $1 FOR UPDATE`, reg.EventID).Scan(&capacity)
		if database.IsNoRows(err) {
			return apperr.NotFound("event not found")
		}
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}
		if capacity != nil {
			var count int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = $1`, reg.EventID).Scan(&count); err != nil {
				return fmt.Errorf("count registrations: %w", err)
			}
			if count >= *capacity {
				return apperr.Conflict("event is full")
			}
		}

		const q = `INSERT INTO registrations (id, event_id, user_id, registered_at, ticket_type)
			VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.Exec(ctx, q, reg.ID, reg.EventID, reg.UserID, reg.RegisteredAt, reg.TicketType); err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("already registered for this event")
			}
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
}

const detailSelect = `SELECT r.id, r.event_id, r.user_id, r.registered_at, r.ticket_type, r.is_checked_in, r.checked_in_at, r.checked_out_at,
		COALESCE(u.full_name, ''), COALESCE(u.email, ''), e.title, e.start_date, e.location
	FROM registrations r
	JOIN events e ON e.id = r.event_id
	LEFT JOIN users u ON u.id = r.user_id`

func scanDetail(row pgx.Row) (*models.RegistrationDetail, error) {
	var d models.RegistrationDetail
	err := row.Scan(&d.ID, &d.EventID, &d.UserID, &d.RegisteredAt, &d.TicketType, &d.IsCheckedIn, &d.CheckedInAt, &d.CheckedOutAt,
		&d.AttendeeName, &d.AttendeeEmail, &d.EventTitle, &d.EventStartsAt, &d.EventLocation)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDetail returns a registration joined with attendee and event.
func (r *Repository) GetDetail(ctx context.Context, id uuid.UUID) (*models.RegistrationDetail, error) {
	d, err := scanDetail(r.pool.QueryRow(ctx, detailSelect+` WHERE r.id = $1`, id))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("registration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return d, nil
}

// ListByUser returns a user's registrations ordered by event start.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.RegistrationDetail, error) {
	rows, err := r.pool.Query(ctx, detailSelect+` WHERE r.user_id = $1 ORDER BY e.start_date ASC, r.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	var list []models.RegistrationDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *d)
	}
	return list, rows.Err()
}

// Delete removes a registration; its attendance row cascades.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("registration not found")
	}
	return nil
}
