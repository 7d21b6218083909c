package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/drowsyguard/backend/internal/detection"
	"github.com/drowsyguard/backend/pkg/queue"
)

// DetectionProcessor persists queued detection events: dequeue, write to
// Postgres, retry on failure.
type DetectionProcessor struct {
	repo   *detection.Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewDetectionProcessor creates a detection event processor.
func NewDetectionProcessor(repo *detection.Repository, q *queue.Queue, logger *zap.Logger) *DetectionProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetectionProcessor{repo: repo, queue: q, logger: logger}
}

// Process executes one detection event job.
func (p *DetectionProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeDetectionEvent {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.DetectionEventPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := p.repo.SaveEvent(ctx, payload.Event()); err != nil {
		return fmt.Errorf("save event: %w", err)
	}

	p.logger.Info("detection event persisted",
		zap.String("event_id", payload.EventID.String()),
		zap.String("session_id", payload.SessionID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *DetectionProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("detection worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
