package certificates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/auditlog"
	"github.com/eventflow/backend/internal/mailer"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/clock"
	"github.com/eventflow/backend/pkg/queue"
	"github.com/eventflow/backend/pkg/storage"
	"github.com/eventflow/backend/pkg/tracing"
)

// Options tune eligibility and mail content.
type Options struct {
	// EligibleAfterCheckout accepts registrations that checked in and later out.
	EligibleAfterCheckout bool
	// SenderName signs certificate emails.
	SenderName string
}

// Service runs the certificate workflow.
type Service struct {
	store    Store
	renderer Renderer
	files    storage.FileStore
	mail     Mailer
	audit    auditlog.Sink
	clock    clock.Clock
	opts     Options
	tracer   trace.Tracer
	number   func(time.Time) string
	logger   *zap.Logger
}

// numberAttempts bounds how many fresh numbers an insert tries after collisions.
const numberAttempts = 3

// NewService creates a certificate service.
func NewService(store Store, renderer Renderer, files storage.FileStore, mail Mailer, audit auditlog.Sink, clk clock.Clock, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	if opts.SenderName == "" {
		opts.SenderName = "EventFlow"
	}
	return &Service{
		store:    store,
		renderer: renderer,
		files:    files,
		mail:     mail,
		audit:    audit,
		clock:    clk,
		opts:     opts,
		tracer:   tracing.Tracer("github.com/eventflow/backend/internal/certificates"),
		number:   NewNumber,
		logger:   logger,
	}
}

func (s *Service) eligible(r *models.Registration) bool {
	if r.IsCheckedIn && r.CheckedInAt != nil {
		return true
	}
	return s.opts.EligibleAfterCheckout && r.Attended()
}

// GenerateCertificate creates a pending certificate for an attended registration.
func (s *Service) GenerateCertificate(ctx context.Context, eventID, userID uuid.UUID) (*models.Certificate, error) {
	var cert *models.Certificate
	err := s.withNumber(ctx, func(tx Tx, number string) error {
		reg, err := tx.RegistrationForPair(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if !s.eligible(reg) {
			return apperr.InvalidTransition("registration is not checked in")
		}
		existing, err := tx.CertificateForPair(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("certificate already exists for this attendee")
		}
		now := s.clock.Now()
		uid := userID
		cert = &models.Certificate{
			ID:                uuid.New(),
			EventID:           eventID,
			UserID:            &uid,
			CertificateNumber: number,
			IssuedAt:          now,
		}
		return tx.InsertCertificate(ctx, cert)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, models.AuditCertificateGenerate, fmt.Sprintf("certificate %s generated for event %s", cert.CertificateNumber, eventID))
	return cert, nil
}

// withNumber runs fn in a transaction with a freshly minted certificate number,
// starting over with a new number when the insert hits ErrNumberTaken.
func (s *Service) withNumber(ctx context.Context, fn func(tx Tx, number string) error) error {
	var err error
	for range numberAttempts {
		number := s.number(s.clock.Now())
		err = s.store.WithTx(ctx, func(tx Tx) error { return fn(tx, number) })
		if !errors.Is(err, ErrNumberTaken) {
			return err
		}
		s.logger.Warn("certificate number collision", zap.String("certificate_number", number))
	}
	return fmt.Errorf("mint certificate number after %d attempts: %w", numberAttempts, err)
}

// GeneratePendingForEvent generates certificates for every attended registration
// lacking one. A nil eventID covers all events.
func (s *Service) GeneratePendingForEvent(ctx context.Context, eventID *uuid.UUID) (BatchResult, error) {
	var res BatchResult
	pairs, err := s.store.ListEligible(ctx, eventID, s.opts.EligibleAfterCheckout)
	if err != nil {
		return res, fmt.Errorf("list eligible registrations: %w", err)
	}
	for _, p := range pairs {
		_, err := s.GenerateCertificate(ctx, p.EventID, p.UserID)
		switch {
		case err == nil:
			res.Succeeded++
		case skippable(err):
			res.Skipped++
		default:
			s.logger.Warn("generate certificate failed", zap.Error(err), zap.String("registration_id", p.RegistrationID.String()))
			res.fail(p.RegistrationID, err)
		}
	}
	return res, nil
}

// ApproveCertificate renders and stores the PDF, then marks the row approved.
// No transaction is held while rendering or storing.
func (s *Service) ApproveCertificate(ctx context.Context, certificateID uuid.UUID) (*models.Certificate, error) {
	d, err := s.store.GetCertificate(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if d.IsApproved && d.FilePath != nil {
		return &d.Certificate, nil
	}
	if d.UserID == nil {
		return nil, apperr.NotFound("certificate attendee no longer exists")
	}
	name := d.AttendeeName
	if strings.TrimSpace(name) == "" {
		name = d.AttendeeEmail
	}

	pdf, err := s.render(ctx, d, name)
	if err != nil {
		return nil, err
	}
	key := storage.CertificateKey(d.CertificateNumber)
	if err := s.saveFile(ctx, key, pdf); err != nil {
		return nil, err
	}
	if err := s.store.MarkApproved(ctx, d.ID, key); err != nil {
		return nil, err
	}

	cert := d.Certificate
	cert.FilePath = &key
	cert.IsApproved = true
	s.logger.Info("certificate approved", zap.String("certificate_id", cert.ID.String()), zap.String("file", key))
	s.record(ctx, models.AuditCertificateApprove, fmt.Sprintf("certificate %s approved", cert.CertificateNumber))
	return &cert, nil
}

// ApproveAllPending approves each pending certificate of an event independently.
func (s *Service) ApproveAllPending(ctx context.Context, eventID uuid.UUID) (BatchResult, error) {
	var res BatchResult
	pending, err := s.store.ListPending(ctx, &eventID)
	if err != nil {
		return res, fmt.Errorf("list pending certificates: %w", err)
	}
	for _, c := range pending {
		_, err := s.ApproveCertificate(ctx, c.ID)
		switch {
		case err == nil:
			res.Succeeded++
		case apperr.IsCode(err, apperr.CodeNotFound):
			res.Skipped++
		default:
			s.logger.Warn("approve certificate failed", zap.Error(err), zap.String("certificate_id", c.ID.String()))
			res.fail(c.ID, err)
		}
	}
	return res, nil
}

// QueueApprovals enqueues one approval job per pending certificate of an event.
func (s *Service) QueueApprovals(ctx context.Context, eventID uuid.UUID, q Enqueuer) (int, error) {
	pending, err := s.store.ListPending(ctx, &eventID)
	if err != nil {
		return 0, fmt.Errorf("list pending certificates: %w", err)
	}
	queued := 0
	for _, c := range pending {
		if err := q.EnqueueCertificateApprove(ctx, queue.CertificateApprovePayload{CertificateID: c.ID, EventID: eventID}); err != nil {
			return queued, apperr.Dependency("enqueue approval", err)
		}
		queued++
	}
	return queued, nil
}

// SendToParticipant emails the event template, or the participant's approved
// certificate when the event has no template, then marks the certificate sent.
func (s *Service) SendToParticipant(ctx context.Context, registrationID uuid.UUID) (*models.Certificate, error) {
	d, err := s.store.RegistrationDetail(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if d.UserID == nil || d.AttendeeEmail == "" {
		return nil, apperr.Validation("participant has no email address")
	}

	tmpl, err := s.store.GetTemplate(ctx, d.EventID)
	if err != nil {
		return nil, err
	}
	var file []byte
	if tmpl != nil {
		if !s.eligible(&d.Registration) {
			return nil, apperr.InvalidTransition("registration is not checked in")
		}
		file, err = s.read(ctx, tmpl.FilePath, "certificate template file is missing")
		if err != nil {
			return nil, err
		}
	} else {
		cert, err := s.store.CertificateByPair(ctx, d.EventID, *d.UserID)
		if err != nil {
			return nil, err
		}
		if cert == nil || !cert.IsApproved || cert.FilePath == nil {
			return nil, apperr.Validation("no certificate template or approved certificate for this participant")
		}
		file, err = s.read(ctx, *cert.FilePath, "certificate file is missing")
		if err != nil {
			return nil, err
		}
	}

	name := fmt.Sprintf("certificate-%s-%s.pdf", d.EventID, *d.UserID)
	if err := s.deliver(ctx, &d.Registration, d.AttendeeEmail, d.AttendeeName, d.EventTitle, name, file); err != nil {
		return nil, err
	}
	return s.MarkCertificateSent(ctx, registrationID, d.AttendeeEmail)
}

// MarkCertificateSent stamps sentAt/sentToEmail on the pair's certificate,
// creating a template-based certificate if none exists. Repeated calls only
// move sentAt forward.
func (s *Service) MarkCertificateSent(ctx context.Context, registrationID uuid.UUID, email string) (*models.Certificate, error) {
	var out *models.Certificate
	err := s.withNumber(ctx, func(tx Tx, number string) error {
		reg, err := tx.RegistrationByID(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.UserID == nil {
			return apperr.Validation("registration has no attendee")
		}
		now := s.clock.Now()
		existing, err := tx.CertificateForPair(ctx, reg.EventID, *reg.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := tx.UpdateCertificateSent(ctx, existing.ID, now, email); err != nil {
				return err
			}
			existing.SentAt = &now
			existing.SentToEmail = &email
			out = existing
			return nil
		}
		if !s.eligible(reg) {
			return apperr.InvalidTransition("registration is not checked in")
		}
		uid := *reg.UserID
		out = &models.Certificate{
			ID:                uuid.New(),
			EventID:           reg.EventID,
			UserID:            &uid,
			CertificateNumber: number,
			IssuedAt:          now,
			IsTemplateBased:   true,
			SentAt:            &now,
			SentToEmail:       &email,
		}
		return tx.InsertCertificate(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, models.AuditCertificateSend, fmt.Sprintf("certificate %s sent to %s", out.CertificateNumber, email))
	return out, nil
}

// SendBulk emails the event template to every attended participant without a
// certificate and marks each one sent. Per-recipient failures are counted.
func (s *Service) SendBulk(ctx context.Context, eventID uuid.UUID) (BatchResult, error) {
	var res BatchResult
	tmpl, err := s.store.GetTemplate(ctx, eventID)
	if err != nil {
		return res, err
	}
	if tmpl == nil {
		return res, apperr.Validation("no certificate template found for this event")
	}
	file, err := s.read(ctx, tmpl.FilePath, "certificate template file is missing")
	if err != nil {
		return res, err
	}
	pairs, err := s.store.ListEligible(ctx, &eventID, s.opts.EligibleAfterCheckout)
	if err != nil {
		return res, fmt.Errorf("list eligible registrations: %w", err)
	}
	for _, p := range pairs {
		if p.AttendeeEmail == "" {
			res.Skipped++
			continue
		}
		d, err := s.store.RegistrationDetail(ctx, p.RegistrationID)
		if err != nil {
			if skippable(err) {
				res.Skipped++
			} else {
				res.fail(p.RegistrationID, err)
			}
			continue
		}
		name := fmt.Sprintf("certificate-%s-%s.pdf", eventID, p.UserID)
		if err := s.deliver(ctx, &d.Registration, p.AttendeeEmail, p.AttendeeName, d.EventTitle, name, file); err != nil {
			s.logger.Warn("bulk send failed", zap.Error(err), zap.String("registration_id", p.RegistrationID.String()))
			res.fail(p.RegistrationID, err)
			continue
		}
		if _, err := s.MarkCertificateSent(ctx, p.RegistrationID, p.AttendeeEmail); err != nil {
			s.logger.Warn("mark sent failed", zap.Error(err), zap.String("registration_id", p.RegistrationID.String()))
			res.fail(p.RegistrationID, err)
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// RevokeCertificate deletes the row. Rendered files stay in storage.
func (s *Service) RevokeCertificate(ctx context.Context, certificateID uuid.UUID) error {
	d, err := s.store.GetCertificate(ctx, certificateID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCertificate(ctx, certificateID); err != nil {
		return err
	}
	s.record(ctx, models.AuditCertificateRevoke, fmt.Sprintf("certificate %s revoked", d.CertificateNumber))
	return nil
}

// Get returns a certificate with its attendee and event.
func (s *Service) Get(ctx context.Context, certificateID uuid.UUID) (*models.CertificateDetail, error) {
	return s.store.GetCertificate(ctx, certificateID)
}

// File returns an approved certificate with its rendered PDF.
func (s *Service) File(ctx context.Context, certificateID uuid.UUID) (*models.CertificateDetail, []byte, error) {
	d, err := s.store.GetCertificate(ctx, certificateID)
	if err != nil {
		return nil, nil, err
	}
	if !d.IsApproved || d.FilePath == nil {
		return nil, nil, apperr.Validation("certificate is not approved yet")
	}
	data, err := s.read(ctx, *d.FilePath, "certificate file is missing")
	if err != nil {
		return nil, nil, err
	}
	return d, data, nil
}

// PendingCertificates lists certificates of an event awaiting approval.
func (s *Service) PendingCertificates(ctx context.Context, eventID uuid.UUID) ([]models.CertificateDetail, error) {
	return s.store.ListPending(ctx, &eventID)
}

// ParticipantCertificates lists a participant's approved certificates.
func (s *Service) ParticipantCertificates(ctx context.Context, userID uuid.UUID) ([]models.CertificateDetail, error) {
	return s.store.ListApprovedForUser(ctx, userID)
}

// UploadTemplate stores a PDF as the event's template, replacing and deleting
// any previous one.
func (s *Service) UploadTemplate(ctx context.Context, eventID uuid.UUID, fileName string, uploadedBy *uuid.UUID, data []byte) (*models.CertificateTemplate, error) {
	switch {
	case len(data) == 0:
		return nil, apperr.Validation("template file is empty")
	case len(data) > storage.MaxTemplateSize:
		return nil, apperr.Validation("template file exceeds 10MB")
	case !storage.IsPDF(data):
		return nil, apperr.Validation("template must be a PDF file")
	}
	fileName = path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if fileName == "." || fileName == "/" {
		fileName = "template.pdf"
	}

	key := storage.TemplateKey(eventID)
	if err := s.saveFile(ctx, key, data); err != nil {
		return nil, err
	}
	t := &models.CertificateTemplate{
		ID:         uuid.New(),
		EventID:    eventID,
		FileName:   fileName,
		FilePath:   key,
		UploadedAt: s.clock.Now(),
		UploadedBy: uploadedBy,
	}
	prev, err := s.store.ReplaceTemplate(ctx, t)
	if err != nil {
		if dErr := s.files.Delete(ctx, key); dErr != nil {
			s.logger.Warn("cleanup template upload failed", zap.Error(dErr), zap.String("key", key))
		}
		return nil, err
	}
	if prev != nil && prev.FilePath != key {
		if err := s.files.Delete(ctx, prev.FilePath); err != nil {
			s.logger.Warn("delete previous template failed", zap.Error(err), zap.String("key", prev.FilePath))
		}
	}
	s.record(ctx, models.AuditTemplateUpload, fmt.Sprintf("template %s uploaded for event %s", fileName, eventID))
	return t, nil
}

// DeleteTemplate removes the event's template row and file.
func (s *Service) DeleteTemplate(ctx context.Context, eventID uuid.UUID) error {
	t, err := s.store.DeleteTemplate(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, t.FilePath); err != nil {
		s.logger.Warn("delete template file failed", zap.Error(err), zap.String("key", t.FilePath))
	}
	s.record(ctx, models.AuditTemplateDelete, fmt.Sprintf("template deleted for event %s", eventID))
	return nil
}

// GetTemplate returns the event's template.
func (s *Service) GetTemplate(ctx context.Context, eventID uuid.UUID) (*models.CertificateTemplate, error) {
	t, err := s.store.GetTemplate(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("no certificate template for this event")
	}
	return t, nil
}

func (s *Service) render(ctx context.Context, d *models.CertificateDetail, name string) ([]byte, error) {
	_, span := s.tracer.Start(ctx, "certificates.render", trace.WithAttributes(
		attribute.String("certificate.id", d.ID.String()),
		attribute.String("certificate.number", d.CertificateNumber),
	))
	defer span.End()
	pdf, err := s.renderer.Render(name, d.EventTitle, d.EventStartsAt, d.CertificateNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return nil, apperr.Dependency("render certificate", err)
	}
	return pdf, nil
}

// saveFile saves data under key in file storage.
func (s *Service) saveFile(ctx context.Context, key string, data []byte) error {
	ctx, span := s.tracer.Start(ctx, "certificates.store", trace.WithAttributes(attribute.String("storage.key", key)))
	defer span.End()
	if err := s.files.Save(ctx, key, storage.ContentTypePDF, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return apperr.Dependency("store file", err)
	}
	return nil
}

func (s *Service) read(ctx context.Context, key, missing string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "certificates.read", trace.WithAttributes(attribute.String("storage.key", key)))
	defer span.End()
	data, err := s.files.Read(ctx, key)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, apperr.Validation(missing)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, apperr.Dependency("read file", err)
	}
	return data, nil
}

func (s *Service) deliver(ctx context.Context, reg *models.Registration, to, attendee, eventTitle, fileName string, file []byte) error {
	ctx, span := s.tracer.Start(ctx, "certificates.send", trace.WithAttributes(attribute.String("registration.id", reg.ID.String())))
	defer span.End()

	if strings.TrimSpace(attendee) == "" {
		attendee = to
	}
	body, err := renderEmail(emailData{Attendee: attendee, EventTitle: eventTitle, Sender: s.opts.SenderName})
	if err != nil {
		return fmt.Errorf("render email body: %w", err)
	}
	eventID, regID := reg.EventID, reg.ID
	ctx = mailer.WithRefs(ctx, mailer.Refs{EventID: &eventID, RegistrationID: &regID, EmailType: models.EmailTypeCertificate})
	att := mailer.Attachment{Name: fileName, ContentType: storage.ContentTypePDF, Data: file}
	if err := s.mail.SendWithAttachment(ctx, to, "Your Certificate for "+eventTitle, body, att); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return apperr.Dependency("send certificate email", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, action, description string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, auditlog.Entry{Action: action, Description: description}); err != nil {
		s.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// skippable reports per-item batch errors that mean "nothing to do here".
func skippable(err error) bool {
	switch apperr.CodeOf(err) {
	case apperr.CodeConflict, apperr.CodeInvalidTransition, apperr.CodeNotFound:
		return true
	}
	return false
}

type emailData struct {
	Attendee   string
	EventTitle string
	Sender     string
}

var emailTmpl = template.Must(template.New("certificate").Parse(`<h2>Certificate of Attendance</h2>
<p>Dear {{.Attendee}},</p>
<p>Thank you for attending <strong>{{.EventTitle}}</strong>.</p>
<p>Please find your certificate attached.</p>
<br>
<p>Best regards,<br>{{.Sender}} Team</p>`))

func renderEmail(d emailData) (string, error) {
	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
