// Package mailer hands outbound mail to the relay through a Redis outbox and
// keeps an email_logs row per message.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/queue"
	"github.com/eventflow/backend/pkg/storage"
)

// FolderOutbox is the storage prefix for attachments awaiting delivery.
const FolderOutbox = "outbox"

// Attachment is a file sent with a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Refs ties a message to the event and registration it concerns.
type Refs struct {
	EventID        *uuid.UUID
	RegistrationID *uuid.UUID
	EmailType      string
}

type refsKey struct{}

// WithRefs tags ctx so the outbox can log which registration a message belongs to.
func WithRefs(ctx context.Context, r Refs) context.Context {
	return context.WithValue(ctx, refsKey{}, r)
}

func refsFrom(ctx context.Context) Refs {
	r, _ := ctx.Value(refsKey{}).(Refs)
	if r.EmailType == "" {
		r.EmailType = models.EmailTypeNotice
	}
	return r
}

// Enqueuer pushes email jobs for the relay.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// LogStore records outbox messages.
type LogStore interface {
	Insert(ctx context.Context, l *models.EmailLog) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Sender identifies the From header of outgoing mail.
type Sender struct {
	Address string
	Name    string
}

// Outbox implements Send and SendWithAttachment by logging and enqueueing.
type Outbox struct {
	logs   LogStore
	queue  Enqueuer
	files  storage.FileStore
	from   Sender
	logger *zap.Logger
}

// NewOutbox creates an outbox mailer.
func NewOutbox(logs LogStore, q Enqueuer, files storage.FileStore, from Sender, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{logs: logs, queue: q, files: files, from: from, logger: logger}
}

// Send queues a plain HTML message.
func (o *Outbox) Send(ctx context.Context, to, subject, htmlBody string) error {
	return o.send(ctx, to, subject, htmlBody, nil)
}

// SendWithAttachment queues a message whose attachment is staged in file storage.
func (o *Outbox) SendWithAttachment(ctx context.Context, to, subject, htmlBody string, att Attachment) error {
	if len(att.Data) == 0 {
		return errors.New("mailer: empty attachment")
	}
	return o.send(ctx, to, subject, htmlBody, &att)
}

func (o *Outbox) send(ctx context.Context, to, subject, htmlBody string, att *Attachment) error {
	to = strings.TrimSpace(to)
	if to == "" || !strings.Contains(to, "@") {
		return fmt.Errorf("mailer: invalid recipient %q", to)
	}
	refs := refsFrom(ctx)
	entry := &models.EmailLog{
		ID:             uuid.New(),
		EventID:        refs.EventID,
		RegistrationID: refs.RegistrationID,
		EmailType:      refs.EmailType,
		RecipientEmail: to,
		Subject:        subject,
		Status:         models.EmailLogStatusPending,
	}
	payload := queue.EmailPayload{
		EmailLogID:     entry.ID,
		EmailType:      refs.EmailType,
		FromAddress:    o.from.Address,
		FromName:       o.from.Name,
		RecipientEmail: to,
		Subject:        subject,
		BodyHTML:       htmlBody,
	}
	if att != nil {
		key := path.Join(FolderOutbox, entry.ID.String(), path.Base(att.Name))
		if err := o.files.Save(ctx, key, att.ContentType, att.Data); err != nil {
			return fmt.Errorf("stage attachment: %w", err)
		}
		entry.AttachmentKey = key
		payload.AttachmentKey = key
		payload.AttachmentName = att.Name
		payload.ContentType = att.ContentType
	}

	if err := o.logs.Insert(ctx, entry); err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	if err := o.queue.EnqueueEmail(ctx, payload); err != nil {
		if mErr := o.logs.MarkFailed(ctx, entry.ID, err.Error()); mErr != nil {
			o.logger.Warn("mark email failed", zap.Error(mErr), zap.String("email_log_id", entry.ID.String()))
		}
		return fmt.Errorf("enqueue email: %w", err)
	}
	o.logger.Info("email queued",
		zap.String("email_log_id", entry.ID.String()),
		zap.String("email_type", refs.EmailType),
		zap.String("recipient", to))
	return nil
}
