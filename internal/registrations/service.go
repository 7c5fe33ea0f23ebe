// Package registrations manages event sign-ups and the QR tickets used to scan them.
package registrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/auditlog"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/clock"
	"github.com/eventflow/backend/pkg/qr"
)

// Store is the registration persistence.
type Store interface {
	// Create inserts reg for attendee, upserting the attendee's user row. A
	// duplicate (event, user) pair or a full event yields Conflict; a missing
	// event yields NotFound.
	Create(ctx context.Context, reg *models.Registration, attendee models.User) error
	GetDetail(ctx context.Context, id uuid.UUID) (*models.RegistrationDetail, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.RegistrationDetail, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// QREncoder turns a scan link into a PNG.
type QREncoder interface {
	Encode(content string) ([]byte, error)
}

// Service implements registration operations.
type Service struct {
	store   Store
	qr      QREncoder
	audit   auditlog.Sink
	clock   clock.Clock
	baseURL string
	logger  *zap.Logger
}

// NewService creates a registration service. baseURL prefixes QR scan links.
func NewService(store Store, enc QREncoder, audit auditlog.Sink, clk clock.Clock, baseURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{store: store, qr: enc, audit: audit, clock: clk, baseURL: baseURL, logger: logger}
}

// Register signs attendee up for eventID. An empty ticketType becomes "General".
func (s *Service) Register(ctx context.Context, eventID uuid.UUID, attendee models.User, ticketType string) (*models.Registration, error) {
	if attendee.ID == uuid.Nil {
		return nil, apperr.Validation("attendee id required")
	}
	ticketType = strings.TrimSpace(ticketType)
	if ticketType == "" {
		ticketType = models.DefaultTicketType
	}
	uid := attendee.ID
	reg := &models.Registration{
		ID:           uuid.New(),
		EventID:      eventID,
		UserID:       &uid,
		RegisteredAt: s.clock.Now(),
		TicketType:   ticketType,
	}
	if err := s.store.Create(ctx, reg, attendee); err != nil {
		return nil, err
	}
	s.record(ctx, models.AuditRegister, fmt.Sprintf("registration %s created for event %s (%s)", reg.ID, eventID, attendee.Email))
	return reg, nil
}

// Get returns a registration with its attendee and event.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.RegistrationDetail, error) {
	return s.store.GetDetail(ctx, id)
}

// ListForUser returns the user's registrations, soonest event first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.RegistrationDetail, error) {
	return s.store.ListByUser(ctx, userID)
}

// Delete removes a registration and its attendance record.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, models.AuditUnregister, fmt.Sprintf("registration %s deleted", id))
	return nil
}

// QRCode returns the PNG ticket for a registration. The code encodes the staff scan URL.
func (s *Service) QRCode(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if _, err := s.store.GetDetail(ctx, id); err != nil {
		return nil, err
	}
	png, err := s.qr.Encode(qr.ScanURL(s.baseURL, id))
	if err != nil {
		return nil, apperr.Dependency("render qr code", err)
	}
	return png, nil
}

func (s *Service) record(ctx context.Context, action, description string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, auditlog.Entry{Action: action, Description: description}); err != nil {
		s.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
