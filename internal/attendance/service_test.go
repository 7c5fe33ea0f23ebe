package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eventflow/backend/internal/auditlog"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/clock"
)

// memStore serializes transitions with one mutex, standing in for the row lock.
type memStore struct {
	mu   sync.Mutex
	regs map[uuid.UUID]models.Registration
	atts map[uuid.UUID]models.Attendance
}

func newMemStore(regs ...models.Registration) *memStore {
	m := &memStore{regs: map[uuid.UUID]models.Registration{}, atts: map[uuid.UUID]models.Attendance{}}
	for _, r := range regs {
		m.regs[r.ID] = r
	}
	return m
}

func (m *memStore) UpdateRegistration(_ context.Context, id uuid.UUID, fn func(t *Transition) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[id]
	if !ok {
		return apperr.NotFound("registration not found")
	}
	t := &Transition{Registration: &reg}
	if a, ok := m.atts[id]; ok {
		t.Attendance = &a
	}
	if err := fn(t); err != nil {
		return err
	}
	m.regs[id] = *t.Registration
	if t.Attendance == nil {
		delete(m.atts, id)
	} else {
		m.atts[id] = *t.Attendance
	}
	return nil
}

func (m *memStore) Counts(_ context.Context, eventID *uuid.UUID) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c Counts
	for _, r := range m.regs {
		if eventID != nil && r.EventID != *eventID {
			continue
		}
		switch StateOf(&r) {
		case NotArrived:
			c.Pending++
		case CheckedIn:
			c.CheckedIn++
		case CheckedOut:
			c.CheckedOut++
		}
	}
	return c, nil
}

func (m *memStore) get(id uuid.UUID) (models.Registration, *models.Attendance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.regs[id]
	if a, ok := m.atts[id]; ok {
		return r, &a
	}
	return r, nil
}

type memSink struct {
	mu      sync.Mutex
	actions []string
}

func (s *memSink) Log(_ context.Context, e auditlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, e.Action)
	return nil
}

var t0 = time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)

func newRegistration() models.Registration {
	uid := uuid.New()
	return models.Registration{ID: uuid.New(), EventID: uuid.New(), UserID: &uid, RegisteredAt: t0.Add(-48 * time.Hour), TicketType: models.DefaultTicketType}
}

func assertInvariants(t *testing.T, r models.Registration) {
	t.Helper()
	if r.IsCheckedIn && r.CheckedInAt == nil {
		t.Fatalf("is_checked_in without checked_in_at: %+v", r)
	}
	if r.IsCheckedIn && r.CheckedOutAt != nil {
		t.Fatalf("is_checked_in with checked_out_at: %+v", r)
	}
	if r.CheckedOutAt != nil && (r.CheckedInAt == nil || r.CheckedOutAt.Before(*r.CheckedInAt)) {
		t.Fatalf("checkout before check-in: %+v", r)
	}
}

func TestStateOf(t *testing.T) {
	in := t0
	out := t0.Add(time.Hour)
	tests := []struct {
		name string
		reg  models.Registration
		want State
	}{
		{"fresh", models.Registration{}, NotArrived},
		{"checked in", models.Registration{IsCheckedIn: true, CheckedInAt: &in}, CheckedIn},
		{"checked out", models.Registration{CheckedInAt: &in, CheckedOutAt: &out}, CheckedOut},
		{"flag without timestamp", models.Registration{IsCheckedIn: true}, NotArrived},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateOf(&tt.reg); got != tt.want {
				t.Fatalf("StateOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	for _, st := range []State{NotArrived, CheckedIn, CheckedOut} {
		if got, ok := ParseState(st.String()); !ok || got != st {
			t.Fatalf("ParseState(%q) = %v, %v", st, got, ok)
		}
	}
	if _, ok := ParseState("arrived"); ok {
		t.Fatal("unknown state accepted")
	}
}

func TestCheckInAndOut(t *testing.T) {
	reg := newRegistration()
	store := newMemStore(reg)
	clk := clock.NewFixed(t0)
	sink := &memSink{}
	svc := NewService(store, sink, clk, nil)
	staff := uuid.New()
	ctx := context.Background()

	got, err := svc.CheckIn(ctx, reg.ID, staff)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if !got.IsCheckedIn || !got.CheckedInAt.Equal(t0) || got.CheckedOutAt != nil {
		t.Fatalf("after check in: %+v", got)
	}
	_, att := store.get(reg.ID)
	if att == nil || *att.CheckedInBy != staff {
		t.Fatalf("attendance not stamped: %+v", att)
	}

	if _, err := svc.CheckIn(ctx, reg.ID, staff); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("second check in err = %v, want InvalidTransition", err)
	}

	clk.Advance(2 * time.Hour)
	got, err = svc.CheckOut(ctx, reg.ID, staff)
	if err != nil {
		t.Fatalf("check out: %v", err)
	}
	if got.IsCheckedIn || got.CheckedOutAt == nil || !got.CheckedOutAt.Equal(t0.Add(2*time.Hour)) {
		t.Fatalf("after check out: %+v", got)
	}
	assertInvariants(t, *got)
	_, att = store.get(reg.ID)
	if att.CheckedOutAt == nil || *att.CheckedOutBy != staff {
		t.Fatalf("attendance checkout not stamped: %+v", att)
	}

	if _, err := svc.CheckOut(ctx, reg.ID, staff); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("second check out err = %v, want InvalidTransition", err)
	}
	if want := []string{models.AuditCheckIn, models.AuditCheckOut}; len(sink.actions) != 2 || sink.actions[0] != want[0] || sink.actions[1] != want[1] {
		t.Fatalf("audit actions = %v, want %v", sink.actions, want)
	}
}

func TestCheckOutBeforeCheckIn(t *testing.T) {
	reg := newRegistration()
	svc := NewService(newMemStore(reg), nil, clock.NewFixed(t0), nil)
	if _, err := svc.CheckOut(context.Background(), reg.ID, uuid.New()); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
}

func TestMissingRegistration(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil, nil)
	ctx := context.Background()
	id := uuid.New()
	if _, err := svc.CheckIn(ctx, id, uuid.Nil); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("check in err = %v", err)
	}
	if _, err := svc.CheckOut(ctx, id, uuid.Nil); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("check out err = %v", err)
	}
	if _, err := svc.ToggleCheckIn(ctx, id, uuid.Nil); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("toggle err = %v", err)
	}
	if _, err := svc.ProcessScan(ctx, id, uuid.Nil); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("scan err = %v", err)
	}
}

func TestConcurrentCheckInExactlyOneWins(t *testing.T) {
	reg := newRegistration()
	store := newMemStore(reg)
	svc := NewService(store, nil, clock.NewFixed(t0), nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CheckIn(context.Background(), reg.ID, uuid.New())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.IsCode(err, apperr.CodeInvalidTransition):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != callers-1 {
		t.Fatalf("ok=%d rejected=%d", ok, rejected)
	}
}

func TestProcessScanSequence(t *testing.T) {
	reg := newRegistration()
	store := newMemStore(reg)
	clk := clock.NewFixed(t0)
	svc := NewService(store, nil, clk, nil)
	ctx := context.Background()

	first, err := svc.ProcessScan(ctx, reg.ID, uuid.New())
	if err != nil || first.Action != ActionCheckIn || first.State != CheckedIn {
		t.Fatalf("first scan = %+v, %v", first, err)
	}
	clk.Advance(time.Minute)
	second, err := svc.ProcessScan(ctx, reg.ID, uuid.New())
	if err != nil || second.Action != ActionCheckOut || second.State != CheckedOut {
		t.Fatalf("second scan = %+v, %v", second, err)
	}

	before, _ := store.get(reg.ID)
	clk.Advance(time.Minute)
	if _, err := svc.ProcessScan(ctx, reg.ID, uuid.New()); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("third scan err = %v, want InvalidTransition", err)
	}
	after, _ := store.get(reg.ID)
	if !after.CheckedOutAt.Equal(*before.CheckedOutAt) || after.IsCheckedIn != before.IsCheckedIn {
		t.Fatalf("third scan mutated state: before=%+v after=%+v", before, after)
	}
	assertInvariants(t, after)
}

func TestToggleCheckIn(t *testing.T) {
	reg := newRegistration()
	store := newMemStore(reg)
	sink := &memSink{}
	svc := NewService(store, sink, clock.NewFixed(t0), nil)
	ctx := context.Background()

	got, err := svc.ToggleCheckIn(ctx, reg.ID, uuid.New())
	if err != nil || !got.IsCheckedIn {
		t.Fatalf("toggle on = %+v, %v", got, err)
	}
	got, err = svc.ToggleCheckIn(ctx, reg.ID, uuid.New())
	if err != nil || got.IsCheckedIn || got.CheckedInAt != nil {
		t.Fatalf("toggle off = %+v, %v", got, err)
	}
	if _, att := store.get(reg.ID); att != nil {
		t.Fatalf("toggle off must delete attendance, got %+v", att)
	}
	if len(sink.actions) != 2 || sink.actions[1] != models.AuditToggleCheckIn {
		t.Fatalf("audit actions = %v", sink.actions)
	}
}

func TestToggleRejectsCheckedOut(t *testing.T) {
	reg := newRegistration()
	store := newMemStore(reg)
	svc := NewService(store, nil, clock.NewFixed(t0), nil)
	ctx := context.Background()
	if _, err := svc.CheckIn(ctx, reg.ID, uuid.Nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CheckOut(ctx, reg.ID, uuid.Nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ToggleCheckIn(ctx, reg.ID, uuid.Nil); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
	got, att := store.get(reg.ID)
	if got.CheckedOutAt == nil || att == nil {
		t.Fatalf("checkout erased: %+v %+v", got, att)
	}
}

func TestCheckOutClampsClockSkew(t *testing.T) {
	reg := newRegistration()
	clk := clock.NewFixed(t0)
	svc := NewService(newMemStore(reg), nil, clk, nil)
	ctx := context.Background()
	if _, err := svc.CheckIn(ctx, reg.ID, uuid.Nil); err != nil {
		t.Fatal(err)
	}
	clk.Set(t0.Add(-time.Minute))
	got, err := svc.CheckOut(ctx, reg.ID, uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	assertInvariants(t, *got)
}

func TestCounts(t *testing.T) {
	a, b, c := newRegistration(), newRegistration(), newRegistration()
	store := newMemStore(a, b, c)
	svc := NewService(store, nil, clock.NewFixed(t0), nil)
	ctx := context.Background()
	_, _ = svc.CheckIn(ctx, b.ID, uuid.Nil)
	_, _ = svc.CheckIn(ctx, c.ID, uuid.Nil)
	_, _ = svc.CheckOut(ctx, c.ID, uuid.Nil)

	got, err := svc.Counts(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != (Counts{Pending: 1, CheckedIn: 1, CheckedOut: 1}) {
		t.Fatalf("counts = %+v", got)
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *recordingNotifier) AttendanceChanged(_ context.Context, c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
}

func TestNotifierSeesCommittedTransitionsOnly(t *testing.T) {
	reg := newRegistration()
	svc := NewService(newMemStore(reg), nil, clock.NewFixed(t0), nil)
	n := &recordingNotifier{}
	svc.SetNotifier(n)
	ctx := context.Background()

	for range 3 {
		_, _ = svc.ProcessScan(ctx, reg.ID, uuid.New())
	}
	if len(n.changes) != 2 {
		t.Fatalf("changes = %d, want 2 (rejected scan must not notify)", len(n.changes))
	}
	if n.changes[0].Action != ActionCheckIn || n.changes[0].State != CheckedIn {
		t.Fatalf("first change = %+v", n.changes[0])
	}
	if n.changes[1].State != CheckedOut || n.changes[1].EventID != reg.EventID || n.changes[1].RegistrationID != reg.ID {
		t.Fatalf("second change = %+v", n.changes[1])
	}
}
