// Package reports serves the paginated admin lists, the dashboard and exports.
package reports

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/attendance"
	"github.com/eventflow/backend/pkg/clock"
	"github.com/eventflow/backend/pkg/pagination"
)

// Store reads the report models.
type Store interface {
	Registrations(ctx context.Context, f RegistrationFilter) (pagination.Page[RegistrationRow], error)
	Attendance(ctx context.Context, f RegistrationFilter) (pagination.Page[RegistrationRow], error)
	Certificates(ctx context.Context, f CertificateFilter) (pagination.Page[CertificateRow], error)
	CheckedInParticipants(ctx context.Context, eventID uuid.UUID, req pagination.Request) (pagination.Page[ParticipantRow], error)
	EachRegistration(ctx context.Context, f RegistrationFilter, fn func(RegistrationRow) error) error
	DashboardCounts(ctx context.Context, w Window, topN int) (RawCounts, error)
	ParticipantSummary(ctx context.Context, userID uuid.UUID, w Window) (ParticipantSummary, error)
}

// Cache holds a recently assembled dashboard. Get returns nil on a miss.
type Cache interface {
	Get(ctx context.Context) (*Dashboard, error)
	Set(ctx context.Context, d *Dashboard) error
}

// Options size the dashboard.
type Options struct {
	TopEvents int
	TrendDays int
}

// Service is the reporting entry point.
type Service struct {
	store  Store
	cache  Cache
	clock  clock.Clock
	opts   Options
	logger *zap.Logger
}

// NewService creates a reports service. cache may be nil.
func NewService(store Store, cache Cache, clk clock.Clock, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	if opts.TopEvents < 1 {
		opts.TopEvents = 10
	}
	if opts.TrendDays < 1 {
		opts.TrendDays = 30
	}
	return &Service{store: store, cache: cache, clock: clk, opts: opts, logger: logger}
}

func (s *Service) Registrations(ctx context.Context, f RegistrationFilter) (pagination.Page[RegistrationRow], error) {
	return s.store.Registrations(ctx, f)
}

func (s *Service) Attendance(ctx context.Context, f RegistrationFilter) (pagination.Page[RegistrationRow], error) {
	return s.store.Attendance(ctx, f)
}

func (s *Service) Certificates(ctx context.Context, f CertificateFilter) (pagination.Page[CertificateRow], error) {
	return s.store.Certificates(ctx, f)
}

func (s *Service) CheckedInParticipants(ctx context.Context, eventID uuid.UUID, req pagination.Request) (pagination.Page[ParticipantRow], error) {
	return s.store.CheckedInParticipants(ctx, eventID, req)
}

// Dashboard returns the admin overview, served from cache when fresh.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	if s.cache != nil {
		d, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		} else if d != nil {
			return d, nil
		}
	}

	w := NewWindow(s.clock.Now(), s.opts.TrendDays)
	raw, err := s.store.DashboardCounts(ctx, w, s.opts.TopEvents)
	if err != nil {
		return nil, err
	}
	d := Assemble(raw, w, s.opts.TopEvents)

	if s.cache != nil {
		if err := s.cache.Set(ctx, &d); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return &d, nil
}

// ParticipantSummary returns a participant's own counts.
func (s *Service) ParticipantSummary(ctx context.Context, userID uuid.UUID) (ParticipantSummary, error) {
	return s.store.ParticipantSummary(ctx, userID, NewWindow(s.clock.Now(), s.opts.TrendDays))
}

// ExportFilename is the download name for a registrations export made now.
func (s *Service) ExportFilename() string {
	return "registrations_" + s.clock.Now().Format("20060102") + ".csv"
}

// ExportRegistrations writes every registration matching f as CSV.
func (s *Service) ExportRegistrations(ctx context.Context, f RegistrationFilter, out io.Writer) error {
	loc := s.clock.Now().Location()
	w := csv.NewWriter(out)
	if err := w.Write([]string{"Event", "Attendee", "Email", "Ticket", "Registered", "Status"}); err != nil {
		return err
	}
	err := s.store.EachRegistration(ctx, f, func(r RegistrationRow) error {
		return w.Write([]string{
			r.EventTitle,
			r.AttendeeName,
			r.AttendeeEmail,
			r.TicketType,
			r.RegisteredAt.In(loc).Format("2006-01-02 15:04"),
			exportStatus(r),
		})
	})
	if err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func exportStatus(r RegistrationRow) string {
	switch r.State {
	case attendance.CheckedIn:
		return "Checked in"
	case attendance.CheckedOut:
		return "Checked out"
	default:
		return "Not checked in"
	}
}
