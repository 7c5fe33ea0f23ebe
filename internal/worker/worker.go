package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/queue"
)

// Approver renders, stores and approves one certificate.
type Approver interface {
	ApproveCertificate(ctx context.Context, certificateID uuid.UUID) (*models.Certificate, error)
}

// JobQueue is the slice of the Redis queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, key string) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// CertificateProcessor drains certificate approval jobs.
type CertificateProcessor struct {
	approver Approver
	queue    JobQueue
	backoff  time.Duration
	logger   *zap.Logger
}

// NewCertificateProcessor creates a certificate approval processor.
func NewCertificateProcessor(approver Approver, q JobQueue, logger *zap.Logger) *CertificateProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateProcessor{approver: approver, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// permanent reports whether retrying err cannot succeed.
func permanent(err error) bool {
	switch apperr.CodeOf(err) {
	case apperr.CodeNotFound, apperr.CodeConflict, apperr.CodeInvalidTransition, apperr.CodeValidationFailure:
		return true
	}
	return false
}

// Process executes one approval job. Jobs whose certificate is gone or
// otherwise unapprovable are dropped rather than retried.
func (p *CertificateProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeCertificateApprove {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.CertificateApprovePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	cert, err := p.approver.ApproveCertificate(ctx, payload.CertificateID)
	if err != nil {
		if permanent(err) {
			p.logger.Warn("certificate approval dropped", zap.String("certificate_id", payload.CertificateID.String()), zap.Error(err))
			return nil
		}
		return fmt.Errorf("approve certificate %s: %w", payload.CertificateID, err)
	}
	p.logger.Info("certificate approved",
		zap.String("certificate_id", cert.ID.String()),
		zap.String("certificate_number", cert.CertificateNumber),
		zap.String("event_id", payload.EventID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *CertificateProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("certificate worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, queue.QueueCertificates)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *CertificateProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
