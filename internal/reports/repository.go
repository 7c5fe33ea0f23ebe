package reports

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventflow/backend/internal/attendance"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/database"
	"github.com/eventflow/backend/pkg/pagination"
)

// Repository runs the read-model queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reports repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const registrationFrom = `
	FROM registrations r
	JOIN events e ON e.id = r.event_id
	LEFT JOIN users u ON u.id = r.user_id`

const registrationSelect = `SELECT r.id, r.event_id, r.user_id, r.registered_at, r.ticket_type, r.is_checked_in, r.checked_in_at, r.checked_out_at,
		COALESCE(u.full_name, ''), COALESCE(u.email, ''), e.title, e.start_date, e.location` + registrationFrom

func scanRegistrationDetail(row pgx.Row, d *models.RegistrationDetail, extra ...any) error {
	dest := []any{&d.ID, &d.EventID, &d.UserID, &d.RegisteredAt, &d.TicketType, &d.IsCheckedIn, &d.CheckedInAt, &d.CheckedOutAt,
		&d.AttendeeName, &d.AttendeeEmail, &d.EventTitle, &d.EventStartsAt, &d.EventLocation}
	return row.Scan(append(dest, extra...)...)
}

// querier is the part of pgx.Tx the paging helpers use.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// paged counts the filtered rows, then reads one page, inside one snapshot.
func paged[T any](ctx context.Context, pool *pgxpool.Pool, from, sel, order string, w *pagination.Where, req pagination.Request, scan func(pgx.Rows) (T, error)) (pagination.Page[T], error) {
	var page pagination.Page[T]
	err := database.WithSnapshot(ctx, pool, func(tx pgx.Tx) error {
		var err error
		page, err = pageIn(ctx, tx, from, sel, order, w, req, scan)
		return err
	})
	return page, err
}

// pageIn runs the count query, then the slice query when the page is in range.
// A page past the end comes back empty with the true total.
func pageIn[T any](ctx context.Context, q querier, from, sel, order string, w *pagination.Where, req pagination.Request, scan func(pgx.Rows) (T, error)) (pagination.Page[T], error) {
	req = req.Normalize()
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*)`+from+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return pagination.Page[T]{}, fmt.Errorf("count: %w", err)
	}
	if total == 0 || req.Offset() >= total {
		return pagination.New[T](nil, req, total), nil
	}
	limit, args := w.Limit(req)
	rows, err := q.Query(ctx, sel+w.SQL()+order+limit, args...)
	if err != nil {
		return pagination.Page[T]{}, err
	}
	defer rows.Close()
	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return pagination.Page[T]{}, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return pagination.Page[T]{}, err
	}
	return pagination.New(items, req, total), nil
}

func scanRegistrationRow(rows pgx.Rows) (RegistrationRow, error) {
	var row RegistrationRow
	if err := scanRegistrationDetail(rows, &row.RegistrationDetail); err != nil {
		return row, err
	}
	row.State = attendance.StateOf(&row.Registration)
	return row, nil
}

// Registrations lists registrations, newest first.
func (r *Repository) Registrations(ctx context.Context, f RegistrationFilter) (pagination.Page[RegistrationRow], error) {
	p, err := paged(ctx, r.pool, registrationFrom, registrationSelect,
		` ORDER BY r.registered_at DESC, r.id DESC`, f.where(), f.Request, scanRegistrationRow)
	if err != nil {
		return p, fmt.Errorf("list registrations: %w", err)
	}
	return p, nil
}

// Attendance lists registrations with not-yet-checked-in rows first.
func (r *Repository) Attendance(ctx context.Context, f RegistrationFilter) (pagination.Page[RegistrationRow], error) {
	p, err := paged(ctx, r.pool, registrationFrom, registrationSelect,
		attendanceOrder, f.where(), f.Request, scanRegistrationRow)
	if err != nil {
		return p, fmt.Errorf("list attendance: %w", err)
	}
	return p, nil
}

const certificateFrom = `
	FROM certificates c
	JOIN events e ON e.id = c.event_id
	LEFT JOIN users u ON u.id = c.user_id`

const certificateSelect = `SELECT c.id, c.event_id, c.user_id, c.certificate_number, c.issued_at, c.file_path, c.is_template_based, c.is_approved, c.sent_at, c.sent_to_email,
		COALESCE(u.full_name, ''), COALESCE(u.email, ''), e.title, e.start_date` + certificateFrom

// Certificates lists certificates, newest first.
func (r *Repository) Certificates(ctx context.Context, f CertificateFilter) (pagination.Page[CertificateRow], error) {
	p, err := paged(ctx, r.pool, certificateFrom, certificateSelect,
		` ORDER BY c.issued_at DESC, c.id DESC`, f.where(), f.Request,
		func(rows pgx.Rows) (CertificateRow, error) {
			var row CertificateRow
			c := &row.CertificateDetail
			err := rows.Scan(&c.ID, &c.EventID, &c.UserID, &c.CertificateNumber, &c.IssuedAt, &c.FilePath, &c.IsTemplateBased, &c.IsApproved, &c.SentAt, &c.SentToEmail,
				&c.AttendeeName, &c.AttendeeEmail, &c.EventTitle, &c.EventStartsAt)
			row.Status = c.Status()
			return row, err
		})
	if err != nil {
		return p, fmt.Errorf("list certificates: %w", err)
	}
	return p, nil
}

const participantFrom = registrationFrom + `
	LEFT JOIN certificates c ON c.event_id = r.event_id AND c.user_id = r.user_id`

const participantSelect = `SELECT r.id, r.event_id, r.user_id, r.registered_at, r.ticket_type, r.is_checked_in, r.checked_in_at, r.checked_out_at,
		COALESCE(u.full_name, ''), COALESCE(u.email, ''), e.title, e.start_date, e.location, c.id, c.sent_at` + participantFrom

// CheckedInParticipants lists an event's attended registrations in arrival order.
func (r *Repository) CheckedInParticipants(ctx context.Context, eventID uuid.UUID, req pagination.Request) (pagination.Page[ParticipantRow], error) {
	w := &pagination.Where{}
	w.Add("r.event_id = %s", eventID)
	w.Add("r.checked_in_at IS NOT NULL")
	p, err := paged(ctx, r.pool, participantFrom, participantSelect,
		` ORDER BY COALESCE(r.checked_in_at, r.registered_at) ASC, r.id ASC`, w, req,
		func(rows pgx.Rows) (ParticipantRow, error) {
			var row ParticipantRow
			err := scanRegistrationDetail(rows, &row.RegistrationDetail, &row.CertificateID, &row.CertificateSentAt)
			row.HasCertificate = row.CertificateID != nil
			return row, err
		})
	if err != nil {
		return p, fmt.Errorf("list checked-in participants: %w", err)
	}
	return p, nil
}

// EachRegistration streams every registration matching f, newest first, ignoring paging.
func (r *Repository) EachRegistration(ctx context.Context, f RegistrationFilter, fn func(RegistrationRow) error) error {
	w := f.where()
	rows, err := r.pool.Query(ctx, registrationSelect+w.SQL()+` ORDER BY r.registered_at DESC, r.id DESC`, w.Args()...)
	if err != nil {
		return fmt.Errorf("export registrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		row, err := scanRegistrationRow(rows)
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DashboardCounts reads the raw dashboard numbers for w.
func (r *Repository) DashboardCounts(ctx context.Context, w Window, topN int) (RawCounts, error) {
	raw := RawCounts{DailyRegistrations: map[int]int{}}
	err := database.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT
				(SELECT COUNT(*) FROM events),
				(SELECT COUNT(*) FROM events WHERE created_at >= $1),
				(SELECT COUNT(*) FROM registrations),
				(SELECT COUNT(*) FROM registrations WHERE registered_at >= $2),
				(SELECT COUNT(*) FROM registrations WHERE checked_in_at IS NOT NULL),
				(SELECT COUNT(*) FROM certificates)`, w.MonthStart, w.DayStart).
			Scan(&raw.TotalEvents, &raw.NewEventsThisMonth, &raw.TotalRegistrations, &raw.RegistrationsToday, &raw.CheckedIn, &raw.Certificates)
		if err != nil {
			return fmt.Errorf("totals: %w", err)
		}

		rows, err := tx.Query(ctx, `SELECT FLOOR(EXTRACT(EPOCH FROM registered_at - $1::timestamptz) / 86400)::int AS day, COUNT(*)
			FROM registrations WHERE registered_at >= $1 GROUP BY day`, w.TrendStart)
		if err != nil {
			return fmt.Errorf("trend: %w", err)
		}
		for rows.Next() {
			var day, n int
			if err := rows.Scan(&day, &n); err != nil {
				rows.Close()
				return err
			}
			raw.DailyRegistrations[day] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `SELECT e.id, e.title, COUNT(r.id), COUNT(r.checked_in_at)
			FROM events e LEFT JOIN registrations r ON r.event_id = e.id
			GROUP BY e.id, e.title
			ORDER BY COUNT(r.id) DESC, e.title ASC, e.id ASC
			LIMIT $1`, topN)
		if err != nil {
			return fmt.Errorf("event rates: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e EventCount
			if err := rows.Scan(&e.ID, &e.Title, &e.Registered, &e.CheckedIn); err != nil {
				return err
			}
			raw.Events = append(raw.Events, e)
		}
		return rows.Err()
	})
	if err != nil {
		return RawCounts{}, fmt.Errorf("dashboard counts: %w", err)
	}
	return raw, nil
}

// ParticipantSummary counts a participant's registrations relative to now.
func (r *Repository) ParticipantSummary(ctx context.Context, userID uuid.UUID, w Window) (ParticipantSummary, error) {
	var s ParticipantSummary
	err := r.pool.QueryRow(ctx, `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE r.checked_in_at IS NOT NULL),
			COUNT(*) FILTER (WHERE e.start_date > $2),
			COUNT(*) FILTER (WHERE e.start_date <= $2 AND r.checked_in_at IS NOT NULL),
			(SELECT COUNT(*) FROM certificates c WHERE c.user_id = $1 AND c.is_approved)
		FROM registrations r JOIN events e ON e.id = r.event_id
		WHERE r.user_id = $1`, userID, w.Now).
		Scan(&s.TotalRegistrations, &s.Attended, &s.Upcoming, &s.Past, &s.Certificates)
	if err != nil {
		return s, fmt.Errorf("participant summary: %w", err)
	}
	return s, nil
}
