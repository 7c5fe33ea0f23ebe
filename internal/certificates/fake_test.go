package certificates

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventflow/backend/internal/auditlog"
	"github.com/eventflow/backend/internal/mailer"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
)

// memStore keeps everything in maps; WithTx holds one mutex for the whole
// callback so transactions are serialized.
type memStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]models.User
	events    map[uuid.UUID]models.Event
	regs      map[uuid.UUID]models.Registration
	certs     map[uuid.UUID]models.Certificate
	templates map[uuid.UUID]models.CertificateTemplate
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[uuid.UUID]models.User{},
		events:    map[uuid.UUID]models.Event{},
		regs:      map[uuid.UUID]models.Registration{},
		certs:     map[uuid.UUID]models.Certificate{},
		templates: map[uuid.UUID]models.CertificateTemplate{},
	}
}

func (m *memStore) addEvent(title string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.events[id] = models.Event{ID: id, Title: title, StartDate: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	return id
}

// addRegistration registers a new user; checkedIn stamps check-in at t0.
func (m *memStore) addRegistration(eventID uuid.UUID, checkedIn bool) models.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid := uuid.New()
	m.users[uid] = models.User{ID: uid, Email: uid.String()[:8] + "@example.com", FullName: "Attendee " + uid.String()[:4]}
	reg := models.Registration{ID: uuid.New(), EventID: eventID, UserID: &uid, RegisteredAt: t0.Add(-time.Hour), TicketType: models.DefaultTicketType}
	if checkedIn {
		at := t0
		reg.IsCheckedIn = true
		reg.CheckedInAt = &at
	}
	m.regs[reg.ID] = reg
	return reg
}

func (m *memStore) checkOut(regID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.regs[regID]
	out := r.CheckedInAt.Add(time.Hour)
	r.IsCheckedIn = false
	r.CheckedOutAt = &out
	m.regs[regID] = r
}

func (m *memStore) countCerts(eventID, userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.certs {
		if c.EventID == eventID && c.UserID != nil && *c.UserID == userID {
			n++
		}
	}
	return n
}

type memTx struct{ m *memStore }

func (m *memStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[uuid.UUID]models.Certificate, len(m.certs))
	for k, v := range m.certs {
		snapshot[k] = v
	}
	if err := fn(memTx{m}); err != nil {
		m.certs = snapshot
		return err
	}
	return nil
}

func (t memTx) RegistrationForPair(_ context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	for _, r := range t.m.regs {
		if r.EventID == eventID && r.UserID != nil && *r.UserID == userID {
			return &r, nil
		}
	}
	return nil, apperr.NotFound("registration not found")
}

func (t memTx) RegistrationByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	r, ok := t.m.regs[id]
	if !ok {
		return nil, apperr.NotFound("registration not found")
	}
	return &r, nil
}

func (t memTx) CertificateForPair(_ context.Context, eventID, userID uuid.UUID) (*models.Certificate, error) {
	return t.m.pairCert(eventID, userID), nil
}

func (t memTx) InsertCertificate(_ context.Context, c *models.Certificate) error {
	for _, existing := range t.m.certs {
		if existing.EventID == c.EventID && *existing.UserID == *c.UserID {
			return apperr.Conflict("certificate already exists for this attendee")
		}
	}
	for _, existing := range t.m.certs {
		if existing.CertificateNumber == c.CertificateNumber {
			return ErrNumberTaken
		}
	}
	t.m.certs[c.ID] = *c
	return nil
}

func (t memTx) UpdateCertificateSent(_ context.Context, id uuid.UUID, sentAt time.Time, email string) error {
	c := t.m.certs[id]
	c.SentAt = &sentAt
	c.SentToEmail = &email
	t.m.certs[id] = c
	return nil
}

func (m *memStore) pairCert(eventID, userID uuid.UUID) *models.Certificate {
	for _, c := range m.certs {
		if c.EventID == eventID && c.UserID != nil && *c.UserID == userID {
			return &c
		}
	}
	return nil
}

func (m *memStore) detail(c models.Certificate) models.CertificateDetail {
	d := models.CertificateDetail{Certificate: c}
	if c.UserID != nil {
		if u, ok := m.users[*c.UserID]; ok {
			d.AttendeeName, d.AttendeeEmail = u.FullName, u.Email
		}
	}
	e := m.events[c.EventID]
	d.EventTitle, d.EventStartsAt = e.Title, e.StartDate
	return d
}

func (m *memStore) GetCertificate(_ context.Context, id uuid.UUID) (*models.CertificateDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.certs[id]
	if !ok {
		return nil, apperr.NotFound("certificate not found")
	}
	d := m.detail(c)
	return &d, nil
}

func (m *memStore) CertificateByPair(_ context.Context, eventID, userID uuid.UUID) (*models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairCert(eventID, userID), nil
}

func (m *memStore) sorted(keep func(c models.Certificate) bool) []models.CertificateDetail {
	var out []models.CertificateDetail
	for _, c := range m.certs {
		if keep(c) {
			out = append(out, m.detail(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CertificateNumber < out[j].CertificateNumber })
	return out
}

func (m *memStore) ListPending(_ context.Context, eventID *uuid.UUID) ([]models.CertificateDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(c models.Certificate) bool {
		return !c.IsApproved && (eventID == nil || c.EventID == *eventID)
	}), nil
}

func (m *memStore) ListApprovedForUser(_ context.Context, userID uuid.UUID) ([]models.CertificateDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(c models.Certificate) bool {
		return c.IsApproved && c.UserID != nil && *c.UserID == userID
	}), nil
}

func (m *memStore) ListEligible(_ context.Context, eventID *uuid.UUID, includeCheckedOut bool) ([]Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Pair
	for _, r := range m.regs {
		if r.UserID == nil || (eventID != nil && r.EventID != *eventID) {
			continue
		}
		if !r.IsCheckedIn && !(includeCheckedOut && r.CheckedInAt != nil) {
			continue
		}
		if m.pairCert(r.EventID, *r.UserID) != nil {
			continue
		}
		u := m.users[*r.UserID]
		out = append(out, Pair{RegistrationID: r.ID, EventID: r.EventID, UserID: *r.UserID, AttendeeName: u.FullName, AttendeeEmail: u.Email})
	}
	return out, nil
}

func (m *memStore) MarkApproved(_ context.Context, id uuid.UUID, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.certs[id]
	if !ok {
		return apperr.NotFound("certificate not found")
	}
	c.FilePath = &filePath
	c.IsApproved = true
	m.certs[id] = c
	return nil
}

func (m *memStore) DeleteCertificate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.certs[id]; !ok {
		return apperr.NotFound("certificate not found")
	}
	delete(m.certs, id)
	return nil
}

func (m *memStore) RegistrationDetail(_ context.Context, id uuid.UUID) (*models.RegistrationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return nil, apperr.NotFound("registration not found")
	}
	d := models.RegistrationDetail{Registration: r, EventTitle: m.events[r.EventID].Title}
	if r.UserID != nil {
		u := m.users[*r.UserID]
		d.AttendeeName, d.AttendeeEmail = u.FullName, u.Email
	}
	return &d, nil
}

func (m *memStore) GetTemplate(_ context.Context, eventID uuid.UUID) (*models.CertificateTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[eventID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memStore) ReplaceTemplate(_ context.Context, t *models.CertificateTemplate) (*models.CertificateTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[t.EventID]; !ok {
		return nil, apperr.NotFound("event not found")
	}
	var prev *models.CertificateTemplate
	if old, ok := m.templates[t.EventID]; ok {
		prev = &old
	}
	m.templates[t.EventID] = *t
	return prev, nil
}

func (m *memStore) DeleteTemplate(_ context.Context, eventID uuid.UUID) (*models.CertificateTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[eventID]
	if !ok {
		return nil, apperr.NotFound("no certificate template for this event")
	}
	delete(m.templates, eventID)
	return &t, nil
}

type stubRenderer struct {
	mu    sync.Mutex
	fail  map[string]bool // certificate numbers that fail
	calls int
}

func (r *stubRenderer) Render(name, title string, _ time.Time, number string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail[number] {
		return nil, errors.New("renderer exploded")
	}
	return []byte("%PDF-1.4 " + name + " " + title + " " + number), nil
}

type sentMail struct {
	to      string
	subject string
	body    string
	att     mailer.Attachment
}

type stubMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]bool // recipients that fail
}

func (s *stubMailer) Send(_ context.Context, to, subject, body string) error {
	return s.SendWithAttachment(context.Background(), to, subject, body, mailer.Attachment{})
}

func (s *stubMailer) SendWithAttachment(_ context.Context, to, subject, body string, att mailer.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[to] {
		return errors.New("smtp relay unavailable")
	}
	s.sent = append(s.sent, sentMail{to: to, subject: subject, body: body, att: att})
	return nil
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
