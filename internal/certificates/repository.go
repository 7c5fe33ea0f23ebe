package certificates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/database"
)

// numberConstraint guards certificates.certificate_number.
const numberConstraint = "certificates_number_key"

// Repository is the PostgreSQL certificate store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a certificate repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

const registrationColumns = `id, event_id, user_id, registered_at, ticket_type, is_checked_in, checked_in_at, checked_out_at`

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.RegisteredAt, &reg.TicketType, &reg.IsCheckedIn, &reg.CheckedInAt, &reg.CheckedOutAt)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("registration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	return &reg, nil
}

func (t *pgTx) RegistrationForPair(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM registrations WHERE event_id = $1 AND user_id = $2 FOR UPDATE`
	return scanRegistration(t.tx.QueryRow(ctx, q, eventID, userID))
}

func (t *pgTx) RegistrationByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1 FOR UPDATE`
	return scanRegistration(t.tx.QueryRow(ctx, q, id))
}

const certificateColumns = `c.id, c.event_id, c.user_id, c.certificate_number, c.issued_at, c.file_path, c.is_template_based, c.is_approved, c.sent_at, c.sent_to_email`

func scanCertificate(row pgx.Row) (*models.Certificate, error) {
	var c models.Certificate
	err := row.Scan(&c.ID, &c.EventID, &c.UserID, &c.CertificateNumber, &c.IssuedAt, &c.FilePath, &c.IsTemplateBased, &c.IsApproved, &c.SentAt, &c.SentToEmail)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func certificateForPair(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, eventID, userID uuid.UUID) (*models.Certificate, error) {
	sql := `SELECT ` + certificateColumns + ` FROM certificates c WHERE c.event_id = $1 AND c.user_id = $2`
	c, err := scanCertificate(q.QueryRow(ctx, sql, eventID, userID))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return c, nil
}

func (t *pgTx) CertificateForPair(ctx context.Context, eventID, userID uuid.UUID) (*models.Certificate, error) {
	return certificateForPair(ctx, t.tx, eventID, userID)
}

func (t *pgTx) InsertCertificate(ctx context.Context, c *models.Certificate) error {
	const q = `INSERT INTO certificates (id, event_id, user_id, certificate_number, issued_at, file_path, is_template_based, is_approved, sent_at, sent_to_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := t.tx.Exec(ctx, q, c.ID, c.EventID, c.UserID, c.CertificateNumber, c.IssuedAt, c.FilePath, c.IsTemplateBased, c.IsApproved, c.SentAt, c.SentToEmail)
	if constraint, ok := database.UniqueConstraint(err); ok {
		if constraint == numberConstraint {
			return ErrNumberTaken
		}
		return apperr.Conflict("certificate already exists for this attendee")
	}
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateCertificateSent(ctx context.Context, id uuid.UUID, sentAt time.Time, email string) error {
	_, err := t.tx.Exec(ctx, `UPDATE certificates SET sent_at = $1, sent_to_email = $2 WHERE id = $3`, sentAt, email, id)
	if err != nil {
		return fmt.Errorf("update certificate sent: %w", err)
	}
	return nil
}

const detailSelect = `SELECT ` + certificateColumns + `,
		COALESCE(u.full_name, ''), COALESCE(u.email, ''), e.title, e.start_date
	FROM certificates c
	JOIN events e ON e.id = c.event_id
	LEFT JOIN users u ON u.id = c.user_id`

func scanDetail(row pgx.Row) (*models.CertificateDetail, error) {
	var d models.CertificateDetail
	c := &d.Certificate
	err := row.Scan(&c.ID, &c.EventID, &c.UserID, &c.CertificateNumber, &c.IssuedAt, &c.FilePath, &c.IsTemplateBased, &c.IsApproved, &c.SentAt, &c.SentToEmail,
		&d.AttendeeName, &d.AttendeeEmail, &d.EventTitle, &d.EventStartsAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) listDetails(ctx context.Context, sql string, args ...any) ([]models.CertificateDetail, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()
	var list []models.CertificateDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *d)
	}
	return list, rows.Err()
}

// GetCertificate returns a certificate with attendee and event.
func (r *Repository) GetCertificate(ctx context.Context, id uuid.UUID) (*models.CertificateDetail, error) {
	d, err := scanDetail(r.pool.QueryRow(ctx, detailSelect+` WHERE c.id = $1`, id))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("certificate not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return d, nil
}

// CertificateByPair returns the pair's certificate or nil.
func (r *Repository) CertificateByPair(ctx context.Context, eventID, userID uuid.UUID) (*models.Certificate, error) {
	return certificateForPair(ctx, r.pool, eventID, userID)
}

// ListPending returns unapproved certificates, oldest first.
func (r *Repository) ListPending(ctx context.Context, eventID *uuid.UUID) ([]models.CertificateDetail, error) {
	return r.listDetails(ctx, detailSelect+` WHERE NOT c.is_approved AND ($1::uuid IS NULL OR c.event_id = $1)
		ORDER BY c.issued_at ASC, c.id ASC`, eventID)
}

// ListApprovedForUser returns a participant's approved certificates, newest first.
func (r *Repository) ListApprovedForUser(ctx context.Context, userID uuid.UUID) ([]models.CertificateDetail, error) {
	return r.listDetails(ctx, detailSelect+` WHERE c.user_id = $1 AND c.is_approved
		ORDER BY c.issued_at DESC, c.id DESC`, userID)
}

// ListEligible returns attended registrations that have no certificate.
func (r *Repository) ListEligible(ctx context.Context, eventID *uuid.UUID, includeCheckedOut bool) ([]Pair, error) {
	const q = `SELECT r.id, r.event_id, r.user_id, COALESCE(u.full_name, ''), COALESCE(u.email, '')
		FROM registrations r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.user_id IS NOT NULL
			AND (r.is_checked_in OR ($2::boolean AND r.checked_in_at IS NOT NULL))
			AND ($1::uuid IS NULL OR r.event_id = $1)
			AND NOT EXISTS (SELECT 1 FROM certificates c WHERE c.event_id = r.event_id AND c.user_id = r.user_id)
		ORDER BY r.checked_in_at ASC, r.id ASC`
	rows, err := r.pool.Query(ctx, q, eventID, includeCheckedOut)
	if err != nil {
		return nil, fmt.Errorf("list eligible: %w", err)
	}
	defer rows.Close()
	var list []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.RegistrationID, &p.EventID, &p.UserID, &p.AttendeeName, &p.AttendeeEmail); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// MarkApproved sets file_path and is_approved.
func (r *Repository) MarkApproved(ctx context.Context, id uuid.UUID, filePath string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE certificates SET file_path = $1, is_approved = TRUE WHERE id = $2`, filePath, id)
	if err != nil {
		return fmt.Errorf("approve certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("certificate not found")
	}
	return nil
}

// DeleteCertificate removes a certificate row.
func (r *Repository) DeleteCertificate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("certificate not found")
	}
	return nil
}

// RegistrationDetail returns a registration with attendee and event.
func (r *Repository) RegistrationDetail(ctx context.Context, id uuid.UUID) (*models.RegistrationDetail, error) {
	const q = `SELECT r.id, r.event_id, r.user_id, r.registered_at, r.ticket_type, r.is_checked_in, r.checked_in_at, r.checked_out_at,
			COALESCE(u.full_name, ''), COALESCE(u.email, ''), e.title, e.start_date, e.location
		FROM registrations r
		JOIN events e ON e.id = r.event_id
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.id = $1`
	var d models.RegistrationDetail
	err := r.pool.QueryRow(ctx, q, id).Scan(&d.ID, &d.EventID, &d.UserID, &d.RegisteredAt, &d.TicketType, &d.IsCheckedIn, &d.CheckedInAt, &d.CheckedOutAt,
		&d.AttendeeName, &d.AttendeeEmail, &d.EventTitle, &d.EventStartsAt, &d.EventLocation)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("registration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &d, nil
}

const templateColumns = `id, event_id, file_name, file_path, uploaded_at, uploaded_by`

func scanTemplate(row pgx.Row) (*models.CertificateTemplate, error) {
	var t models.CertificateTemplate
	if err := row.Scan(&t.ID, &t.EventID, &t.FileName, &t.FilePath, &t.UploadedAt, &t.UploadedBy); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTemplate returns the event's template or nil.
func (r *Repository) GetTemplate(ctx context.Context, eventID uuid.UUID) (*models.CertificateTemplate, error) {
	t, err := scanTemplate(r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM certificate_templates WHERE event_id = $1`, eventID))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// ReplaceTemplate deletes the event's current template row and inserts t.
func (r *Repository) ReplaceTemplate(ctx context.Context, t *models.CertificateTemplate) (*models.CertificateTemplate, error) {
	var prev *models.CertificateTemplate
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, t.EventID).Scan(&exists); err != nil {
			return fmt.Errorf("check event: %w", err)
		}
		if !exists {
			return apperr.NotFound("event not found")
		}
		old, err := scanTemplate(tx.QueryRow(ctx, `DELETE FROM certificate_templates WHERE event_id = $1 RETURNING `+templateColumns, t.EventID))
		switch {
		case err == nil:
			prev = old
		case !database.IsNoRows(err):
			return fmt.Errorf("delete previous template: %w", err)
		}
		const q = `INSERT INTO certificate_templates (id, event_id, file_name, file_path, uploaded_at, uploaded_by)
			VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := tx.Exec(ctx, q, t.ID, t.EventID, t.FileName, t.FilePath, t.UploadedAt, t.UploadedBy); err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("template upload already in progress for this event")
			}
			return fmt.Errorf("insert template: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

// DeleteTemplate removes and returns the event's template.
func (r *Repository) DeleteTemplate(ctx context.Context, eventID uuid.UUID) (*models.CertificateTemplate, error) {
	t, err := scanTemplate(r.pool.QueryRow(ctx, `DELETE FROM certificate_templates WHERE event_id = $1 RETURNING `+templateColumns, eventID))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("no certificate template for this event")
	}
	if err != nil {
		return nil, fmt.Errorf("delete template: %w", err)
	}
	return t, nil
}
