package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/queue"
)

type stubApprover struct {
	mu    sync.Mutex
	err   error
	calls []uuid.UUID
}

func (a *stubApprover) ApproveCertificate(_ context.Context, id uuid.UUID) (*models.Certificate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, id)
	if a.err != nil {
		return nil, a.err
	}
	return &models.Certificate{ID: id, CertificateNumber: "CERT-20260101-abcdef", IsApproved: true}, nil
}

type chanQueue struct {
	jobs    chan *queue.Job
	mu      sync.Mutex
	retried []*queue.Job
}

func (q *chanQueue) Dequeue(ctx context.Context, _ string) (*queue.Job, error) {
	select {
	case j := <-q.jobs:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (q *chanQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func approveJob(t *testing.T, id uuid.UUID) *queue.Job {
	t.Helper()
	body, err := json.Marshal(queue.CertificateApprovePayload{CertificateID: id, EventID: uuid.New()})
	if err != nil {
		t.Fatal(err)
	}
	return &queue.Job{ID: uuid.NewString(), Type: queue.JobTypeCertificateApprove, Queue: queue.QueueCertificates, Payload: body}
}

func TestProcessApproves(t *testing.T) {
	a := &stubApprover{}
	p := NewCertificateProcessor(a, nil, nil)
	id := uuid.New()
	if err := p.Process(context.Background(), approveJob(t, id)); err != nil {
		t.Fatal(err)
	}
	if len(a.calls) != 1 || a.calls[0] != id {
		t.Fatalf("calls = %v", a.calls)
	}
}

func TestProcessRejectsUnknownJob(t *testing.T) {
	p := NewCertificateProcessor(&stubApprover{}, nil, nil)
	if err := p.Process(context.Background(), &queue.Job{Type: queue.JobTypeEmail}); err == nil {
		t.Fatal("expected error for email job")
	}
}

func TestProcessDropsPermanentFailures(t *testing.T) {
	p := NewCertificateProcessor(&stubApprover{err: apperr.NotFound("certificate not found")}, nil, nil)
	if err := p.Process(context.Background(), approveJob(t, uuid.New())); err != nil {
		t.Fatalf("permanent failure should be dropped, got %v", err)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	a := &stubApprover{err: apperr.Dependency("render certificate", errors.New("font missing"))}
	q := &chanQueue{jobs: make(chan *queue.Job, 1)}
	p := NewCertificateProcessor(a, q, nil)
	p.backoff = time.Millisecond
	q.jobs <- approveJob(t, uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		q.mu.Lock()
		n := len(q.retried)
		q.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job was not retried")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
	if q.retried[0].Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", q.retried[0].Attempt)
	}
}
