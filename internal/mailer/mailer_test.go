package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/queue"
	"github.com/eventflow/backend/pkg/storage"
)

type memLogs struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]models.EmailLog
	failed map[uuid.UUID]string
}

func newMemLogs() *memLogs {
	return &memLogs{rows: map[uuid.UUID]models.EmailLog{}, failed: map[uuid.UUID]string{}}
}

func (m *memLogs) Insert(_ context.Context, l *models.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[l.ID] = *l
	return nil
}

func (m *memLogs) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = reason
	return nil
}

type memQueue struct {
	jobs []queue.EmailPayload
	err  error
}

func (q *memQueue) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, p)
	return nil
}

func TestSendWithAttachmentStagesFile(t *testing.T) {
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logs := newMemLogs()
	q := &memQueue{}
	o := NewOutbox(logs, q, files, Sender{Address: "noreply@example.com", Name: "EventFlow"}, nil)

	eventID, regID := uuid.New(), uuid.New()
	ctx := WithRefs(context.Background(), Refs{EventID: &eventID, RegistrationID: &regID, EmailType: models.EmailTypeCertificate})
	att := Attachment{Name: "certificate.pdf", ContentType: storage.ContentTypePDF, Data: []byte("%PDF-1.4 body")}
	if err := o.SendWithAttachment(ctx, "ann@example.com", "Your certificate", "<p>hi</p>", att); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(q.jobs) != 1 {
		t.Fatalf("jobs = %d", len(q.jobs))
	}
	job := q.jobs[0]
	if job.FromAddress != "noreply@example.com" || job.EmailType != models.EmailTypeCertificate || job.AttachmentKey == "" {
		t.Fatalf("payload = %+v", job)
	}
	staged, err := files.Read(context.Background(), job.AttachmentKey)
	if err != nil || string(staged) != "%PDF-1.4 body" {
		t.Fatalf("staged = %q, %v", staged, err)
	}
	row := logs.rows[job.EmailLogID]
	if row.Status != models.EmailLogStatusPending || *row.RegistrationID != regID {
		t.Fatalf("log row = %+v", row)
	}
}

func TestSendMarksFailedWhenEnqueueFails(t *testing.T) {
	files, _ := storage.NewLocal(t.TempDir())
	logs := newMemLogs()
	o := NewOutbox(logs, &memQueue{err: errors.New("redis down")}, files, Sender{}, nil)
	if err := o.Send(context.Background(), "ann@example.com", "s", "b"); err == nil {
		t.Fatal("expected error")
	}
	if len(logs.failed) != 1 {
		t.Fatalf("failed rows = %d", len(logs.failed))
	}
	for id := range logs.rows {
		if logs.rows[id].EmailType != models.EmailTypeNotice {
			t.Fatalf("default email type = %q", logs.rows[id].EmailType)
		}
	}
}

func TestSendRejectsBadInput(t *testing.T) {
	files, _ := storage.NewLocal(t.TempDir())
	o := NewOutbox(newMemLogs(), &memQueue{}, files, Sender{}, nil)
	if err := o.Send(context.Background(), "not-an-address", "s", "b"); err == nil {
		t.Fatal("expected invalid recipient error")
	}
	if err := o.SendWithAttachment(context.Background(), "a@example.com", "s", "b", Attachment{Name: "x.pdf"}); err == nil {
		t.Fatal("expected empty attachment error")
	}
}
