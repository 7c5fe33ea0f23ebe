package registrations

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eventflow/backend/internal/auditlog"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/clock"
	"github.com/eventflow/backend/pkg/qr"
)

type fakeStore struct {
	mu       sync.Mutex
	events   map[uuid.UUID]int // capacity; 0 means unlimited
	regs     map[uuid.UUID]models.Registration
	attendee map[uuid.UUID]models.User
}

func newFakeStore(events ...uuid.UUID) *fakeStore {
	f := &fakeStore{events: map[uuid.UUID]int{}, regs: map[uuid.UUID]models.Registration{}, attendee: map[uuid.UUID]models.User{}}
	for _, id := range events {
		f.events[id] = 0
	}
	return f
}

func (f *fakeStore) Create(_ context.Context, reg *models.Registration, attendee models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	capacity, ok := f.events[reg.EventID]
	if !ok {
		return apperr.NotFound("event not found")
	}
	count := 0
	for _, r := range f.regs {
		if r.EventID != reg.EventID {
			continue
		}
		count++
		if *r.UserID == *reg.UserID {
			return apperr.Conflict("already registered for this event")
		}
	}
	if capacity > 0 && count >= capacity {
		return apperr.Conflict("event is full")
	}
	f.regs[reg.ID] = *reg
	f.attendee[attendee.ID] = attendee
	return nil
}

func (f *fakeStore) GetDetail(_ context.Context, id uuid.UUID) (*models.RegistrationDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.regs[id]
	if !ok {
		return nil, apperr.NotFound("registration not found")
	}
	u := f.attendee[*r.UserID]
	return &models.RegistrationDetail{Registration: r, AttendeeName: u.FullName, AttendeeEmail: u.Email}, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.RegistrationDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RegistrationDetail
	for _, r := range f.regs {
		if r.UserID != nil && *r.UserID == userID {
			out = append(out, models.RegistrationDetail{Registration: r})
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.regs[id]; !ok {
		return apperr.NotFound("registration not found")
	}
	delete(f.regs, id)
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []auditlog.Entry
}

func (s *recordingSink) Log(_ context.Context, e auditlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

type stubEncoder struct {
	content string
	err     error
}

func (e *stubEncoder) Encode(content string) ([]byte, error) {
	e.content = content
	if e.err != nil {
		return nil, e.err
	}
	return []byte("png"), nil
}

var now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestRegisterDefaultsAndDuplicates(t *testing.T) {
	eventID := uuid.New()
	store := newFakeStore(eventID)
	sink := &recordingSink{}
	svc := NewService(store, &stubEncoder{}, sink, clock.NewFixed(now), "http://localhost", nil)
	user := models.User{ID: uuid.New(), Email: "ann@example.com", FullName: "Ann"}

	reg, err := svc.Register(context.Background(), eventID, user, "  ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.TicketType != models.DefaultTicketType {
		t.Fatalf("ticket type = %q, want %q", reg.TicketType, models.DefaultTicketType)
	}
	if !reg.RegisteredAt.Equal(now) || reg.IsCheckedIn || reg.CheckedInAt != nil {
		t.Fatalf("unexpected new registration %+v", reg)
	}
	if len(sink.entries) != 1 || sink.entries[0].Action != models.AuditRegister {
		t.Fatalf("audit entries = %+v", sink.entries)
	}

	_, err = svc.Register(context.Background(), eventID, user, "VIP")
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("duplicate register err = %v, want Conflict", err)
	}
	if len(sink.entries) != 1 {
		t.Fatalf("failed register must not be audited")
	}
}

func TestRegisterUnknownEvent(t *testing.T) {
	svc := NewService(newFakeStore(), &stubEncoder{}, nil, nil, "", nil)
	_, err := svc.Register(context.Background(), uuid.New(), models.User{ID: uuid.New()}, "")
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestRegisterRequiresAttendee(t *testing.T) {
	svc := NewService(newFakeStore(), &stubEncoder{}, nil, nil, "", nil)
	_, err := svc.Register(context.Background(), uuid.New(), models.User{}, "")
	if !apperr.IsCode(err, apperr.CodeValidationFailure) {
		t.Fatalf("err = %v, want ValidationFailure", err)
	}
}

func TestRegisterRespectsCapacity(t *testing.T) {
	eventID := uuid.New()
	store := newFakeStore(eventID)
	store.events[eventID] = 1
	svc := NewService(store, &stubEncoder{}, nil, nil, "", nil)
	if _, err := svc.Register(context.Background(), eventID, models.User{ID: uuid.New()}, ""); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Register(context.Background(), eventID, models.User{ID: uuid.New()}, "")
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
}

func TestQRCodeEncodesScanURL(t *testing.T) {
	eventID := uuid.New()
	store := newFakeStore(eventID)
	enc := &stubEncoder{}
	svc := NewService(store, enc, nil, nil, "https://events.example.com/", nil)
	reg, err := svc.Register(context.Background(), eventID, models.User{ID: uuid.New()}, "")
	if err != nil {
		t.Fatal(err)
	}
	png, err := svc.QRCode(context.Background(), reg.ID)
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	if !bytes.Equal(png, []byte("png")) {
		t.Fatalf("png = %q", png)
	}
	if want := "https://events.example.com/staff/scan/" + reg.ID.String(); enc.content != want {
		t.Fatalf("content = %q, want %q", enc.content, want)
	}

	enc.err = errors.New("boom")
	if _, err := svc.QRCode(context.Background(), reg.ID); !apperr.IsCode(err, apperr.CodeDependencyFailure) {
		t.Fatalf("err = %v, want DependencyFailure", err)
	}
	if _, err := svc.QRCode(context.Background(), uuid.New()); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestQRCodeWithRealEncoder(t *testing.T) {
	eventID := uuid.New()
	svc := NewService(newFakeStore(eventID), qr.NewEncoder(128), nil, nil, "http://localhost:8080", nil)
	reg, err := svc.Register(context.Background(), eventID, models.User{ID: uuid.New()}, "")
	if err != nil {
		t.Fatal(err)
	}
	png, err := svc.QRCode(context.Background(), reg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(png), "\x89PNG") {
		t.Fatalf("not a png")
	}
}

func TestDeleteAudits(t *testing.T) {
	eventID := uuid.New()
	sink := &recordingSink{}
	svc := NewService(newFakeStore(eventID), &stubEncoder{}, sink, nil, "", nil)
	reg, _ := svc.Register(context.Background(), eventID, models.User{ID: uuid.New()}, "")
	if err := svc.Delete(context.Background(), reg.ID); err != nil {
		t.Fatal(err)
	}
	if got := sink.entries[len(sink.entries)-1].Action; got != models.AuditUnregister {
		t.Fatalf("last action = %q", got)
	}
	if err := svc.Delete(context.Background(), reg.ID); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}
