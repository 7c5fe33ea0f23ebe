package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/auditlog"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/clock"
)

// Transition is the locked registration and its attendance row as seen inside
// one transaction. A nil Attendance after the callback deletes the row.
type Transition struct {
	Registration *models.Registration
	Attendance   *models.Attendance
}

// Store persists transitions.
type Store interface {
	// UpdateRegistration locks registration id, loads it with its attendance
	// row, runs fn and writes the result back in the same transaction. The
	// transaction rolls back if fn returns an error. A missing registration
	// yields NotFound.
	UpdateRegistration(ctx context.Context, id uuid.UUID, fn func(t *Transition) error) error
	// Counts returns pending, checked-in and checked-out totals, optionally for one event.
	Counts(ctx context.Context, eventID *uuid.UUID) (Counts, error)
}

// Counts summarizes attendance for the staff console.
type Counts struct {
	Pending    int `json:"pending"`
	CheckedIn  int `json:"checked_in"`
	CheckedOut int `json:"checked_out"`
}

// ScanResult is the outcome of ProcessScan.
type ScanResult struct {
	Action       Action              `json:"action"`
	State        State               `json:"state"`
	Registration models.Registration `json:"registration"`
}

// Change is a committed transition, as seen by live listeners.
type Change struct {
	EventID        uuid.UUID `json:"event_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	Action         Action    `json:"action"`
	State          State     `json:"state"`
	At             time.Time `json:"at"`
}

// Notifier is told about every committed transition.
type Notifier interface {
	AttendanceChanged(ctx context.Context, c Change)
}

// Service runs attendance transitions.
type Service struct {
	store    Store
	audit    auditlog.Sink
	clock    clock.Clock
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates an attendance service.
func NewService(store Store, audit auditlog.Sink, clk clock.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{store: store, audit: audit, clock: clk, logger: logger}
}

// SetNotifier installs the listener for committed transitions (e.g. the live staff feed).
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// CheckIn moves a registration from NotArrived to CheckedIn.
func (s *Service) CheckIn(ctx context.Context, registrationID, staffUserID uuid.UUID) (*models.Registration, error) {
	reg, err := s.apply(ctx, registrationID, func(t *Transition) (Action, error) {
		return ActionCheckIn, checkIn(t, staffUserID, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, models.AuditCheckIn, staffUserID, fmt.Sprintf("registration %s checked in", registrationID))
	s.notify(ctx, ActionCheckIn, reg)
	return reg, nil
}

// CheckOut moves a registration from CheckedIn to CheckedOut.
func (s *Service) CheckOut(ctx context.Context, registrationID, staffUserID uuid.UUID) (*models.Registration, error) {
	reg, err := s.apply(ctx, registrationID, func(t *Transition) (Action, error) {
		return ActionCheckOut, checkOut(t, staffUserID, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, models.AuditCheckOut, staffUserID, fmt.Sprintf("registration %s checked out", registrationID))
	s.notify(ctx, ActionCheckOut, reg)
	return reg, nil
}

// ToggleCheckIn flips between NotArrived and CheckedIn. A checked-out
// registration is rejected rather than having its checkout erased.
func (s *Service) ToggleCheckIn(ctx context.Context, registrationID, staffUserID uuid.UUID) (*models.Registration, error) {
	var action Action
	reg, err := s.apply(ctx, registrationID, func(t *Transition) (Action, error) {
		switch StateOf(t.Registration) {
		case NotArrived:
			action = ActionCheckIn
			return action, checkIn(t, staffUserID, s.clock.Now())
		case CheckedIn:
			action = ActionReset
			reset(t)
			return action, nil
		default:
			return "", apperr.InvalidTransition("registration is checked out; toggle cannot undo a checkout")
		}
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, models.AuditToggleCheckIn, staffUserID, fmt.Sprintf("registration %s toggled (%s)", registrationID, action))
	s.notify(ctx, action, reg)
	return reg, nil
}

// ProcessScan advances a scanned registration by one step: NotArrived checks
// in, CheckedIn checks out and CheckedOut reports InvalidTransition without
// changing anything. State is read and written under the same lock.
func (s *Service) ProcessScan(ctx context.Context, registrationID, staffUserID uuid.UUID) (*ScanResult, error) {
	var action Action
	reg, err := s.apply(ctx, registrationID, func(t *Transition) (Action, error) {
		now := s.clock.Now()
		switch StateOf(t.Registration) {
		case NotArrived:
			action = ActionCheckIn
			return action, checkIn(t, staffUserID, now)
		case CheckedIn:
			action = ActionCheckOut
			return action, checkOut(t, staffUserID, now)
		default:
			return "", apperr.InvalidTransition("already checked out")
		}
	})
	if err != nil {
		return nil, err
	}
	auditAction := models.AuditCheckIn
	if action == ActionCheckOut {
		auditAction = models.AuditCheckOut
	}
	s.record(ctx, auditAction, staffUserID, fmt.Sprintf("registration %s scanned (%s)", registrationID, action))
	s.notify(ctx, action, reg)
	return &ScanResult{Action: action, State: StateOf(reg), Registration: *reg}, nil
}

// Counts returns the staff console totals.
func (s *Service) Counts(ctx context.Context, eventID *uuid.UUID) (Counts, error) {
	return s.store.Counts(ctx, eventID)
}

func (s *Service) apply(ctx context.Context, id uuid.UUID, fn func(t *Transition) (Action, error)) (*models.Registration, error) {
	var out models.Registration
	err := s.store.UpdateRegistration(ctx, id, func(t *Transition) error {
		action, err := fn(t)
		if err != nil {
			return err
		}
		if err := validate(t.Registration); err != nil {
			return err
		}
		out = *t.Registration
		s.logger.Debug("attendance transition",
			zap.String("registration_id", id.String()),
			zap.String("action", string(action)),
			zap.Stringer("state", StateOf(t.Registration)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) record(ctx context.Context, action string, staffUserID uuid.UUID, description string) {
	if s.audit == nil {
		return
	}
	actor := auditlog.Actor{}
	if staffUserID != uuid.Nil {
		actor.UserID = &staffUserID
	}
	if err := s.audit.Log(ctx, auditlog.Entry{Action: action, Description: description, Actor: actor}); err != nil {
		s.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, action Action, reg *models.Registration) {
	if s.notifier == nil {
		return
	}
	s.notifier.AttendanceChanged(ctx, Change{
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
		Action:         action,
		State:          StateOf(reg),
		At:             s.clock.Now(),
	})
}

func checkIn(t *Transition, staff uuid.UUID, now time.Time) error {
	if st := StateOf(t.Registration); st != NotArrived {
		return apperr.InvalidTransition(fmt.Sprintf("cannot check in: registration is %s", st))
	}
	r := t.Registration
	r.IsCheckedIn = true
	r.CheckedInAt = &now
	r.CheckedOutAt = nil

	if t.Attendance == nil {
		t.Attendance = &models.Attendance{ID: uuid.New(), RegistrationID: r.ID}
	}
	t.Attendance.CheckedInAt = &now
	t.Attendance.CheckedInBy = staffRef(staff)
	t.Attendance.CheckedOutAt = nil
	t.Attendance.CheckedOutBy = nil
	return nil
}

func checkOut(t *Transition, staff uuid.UUID, now time.Time) error {
	if st := StateOf(t.Registration); st != CheckedIn {
		return apperr.InvalidTransition(fmt.Sprintf("cannot check out: registration is %s", st))
	}
	r := t.Registration
	if now.Before(*r.CheckedInAt) {
		now = *r.CheckedInAt
	}
	r.IsCheckedIn = false
	r.CheckedOutAt = &now

	if t.Attendance == nil {
		t.Attendance = &models.Attendance{ID: uuid.New(), RegistrationID: r.ID, CheckedInAt: r.CheckedInAt}
	}
	t.Attendance.CheckedOutAt = &now
	t.Attendance.CheckedOutBy = staffRef(staff)
	return nil
}

func reset(t *Transition) {
	r := t.Registration
	r.IsCheckedIn = false
	r.CheckedInAt = nil
	r.CheckedOutAt = nil
	t.Attendance = nil
}

// validate enforces the timestamp invariants before anything is written.
func validate(r *models.Registration) error {
	if r.IsCheckedIn && (r.CheckedInAt == nil || r.CheckedOutAt != nil) {
		return fmt.Errorf("registration %s: checked-in flag inconsistent with timestamps", r.ID)
	}
	if r.CheckedOutAt != nil && (r.CheckedInAt == nil || r.CheckedOutAt.Before(*r.CheckedInAt)) {
		return fmt.Errorf("registration %s: checkout precedes check-in", r.ID)
	}
	return nil
}

func staffRef(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
