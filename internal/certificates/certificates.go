// Package certificates issues proof-of-attendance certificates: generation of
// pending rows, rendering on approval, sending and revocation.
package certificates

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eventflow/backend/internal/mailer"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/queue"
)

// ErrNumberTaken is returned by InsertCertificate when the certificate number
// is already used by another row. The caller mints a new number and retries.
var ErrNumberTaken = errors.New("certificate number already taken")

// Renderer produces a certificate PDF.
type Renderer interface {
	Render(attendeeName, eventTitle string, eventDate time.Time, certificateNumber string) ([]byte, error)
}

// Mailer delivers certificate mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
	SendWithAttachment(ctx context.Context, to, subject, htmlBody string, att mailer.Attachment) error
}

// Enqueuer defers approvals to the worker.
type Enqueuer interface {
	EnqueueCertificateApprove(ctx context.Context, payload queue.CertificateApprovePayload) error
}

// Tx is the certificate store inside one transaction.
type Tx interface {
	// RegistrationForPair locks the registration of (eventID, userID).
	RegistrationForPair(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error)
	// RegistrationByID locks a registration by id.
	RegistrationByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	// CertificateForPair returns nil, nil when the pair has no certificate.
	CertificateForPair(ctx context.Context, eventID, userID uuid.UUID) (*models.Certificate, error)
	// InsertCertificate returns Conflict when the pair or number is taken.
	InsertCertificate(ctx context.Context, c *models.Certificate) error
	UpdateCertificateSent(ctx context.Context, id uuid.UUID, sentAt time.Time, email string) error
}

// Pair is an attended registration that has no certificate yet.
type Pair struct {
	RegistrationID uuid.UUID
	EventID        uuid.UUID
	UserID         uuid.UUID
	AttendeeName   string
	AttendeeEmail  string
}

// Store is certificate persistence.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetCertificate(ctx context.Context, id uuid.UUID) (*models.CertificateDetail, error)
	CertificateByPair(ctx context.Context, eventID, userID uuid.UUID) (*models.Certificate, error)
	ListPending(ctx context.Context, eventID *uuid.UUID) ([]models.CertificateDetail, error)
	ListApprovedForUser(ctx context.Context, userID uuid.UUID) ([]models.CertificateDetail, error)
	// ListEligible returns attended registrations lacking a certificate.
	// includeCheckedOut also returns registrations that checked out.
	ListEligible(ctx context.Context, eventID *uuid.UUID, includeCheckedOut bool) ([]Pair, error)
	MarkApproved(ctx context.Context, id uuid.UUID, filePath string) error
	DeleteCertificate(ctx context.Context, id uuid.UUID) error

	RegistrationDetail(ctx context.Context, id uuid.UUID) (*models.RegistrationDetail, error)

	GetTemplate(ctx context.Context, eventID uuid.UUID) (*models.CertificateTemplate, error)
	// ReplaceTemplate stores t as the event's template and returns the one it replaced.
	ReplaceTemplate(ctx context.Context, t *models.CertificateTemplate) (*models.CertificateTemplate, error)
	DeleteTemplate(ctx context.Context, eventID uuid.UUID) (*models.CertificateTemplate, error)
}

// BatchFailure is one item a batch could not process.
type BatchFailure struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// BatchResult reports a best-effort batch.
type BatchResult struct {
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Failures  []BatchFailure `json:"failures,omitempty"`
}

func (b *BatchResult) fail(id uuid.UUID, err error) {
	b.Failed++
	b.Failures = append(b.Failures, BatchFailure{ID: id, Error: err.Error()})
}
