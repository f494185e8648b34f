// Package worker drains queued endpoint hits into the stats service.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/stats"
	"github.com/aura-events/backend/pkg/queue"
)

// JobSource hands out queued jobs and takes back failed ones.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// HitSender delivers one hit to the stats service.
type HitSender interface {
	PostHit(ctx context.Context, hit stats.Hit) error
}

// HitProcessor forwards hit jobs to the stats service.
type HitProcessor struct {
	queue   JobSource
	sender  HitSender
	backoff time.Duration
	logger  *zap.Logger
}

// NewHitProcessor creates a hit delivery processor. backoff <= 0 uses queue.DefaultRetryBackoff.
func NewHitProcessor(q JobSource, sender HitSender, backoff time.Duration, logger *zap.Logger) *HitProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backoff <= 0 {
		backoff = queue.DefaultRetryBackoff
	}
	return &HitProcessor{queue: q, sender: sender, backoff: backoff, logger: logger}
}

// Process delivers one hit job.
func (p *HitProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeHit {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.HitPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	hit := stats.Hit{App: payload.App, URI: payload.URI, IP: payload.IP, Timestamp: payload.Timestamp}
	if err := p.sender.PostHit(ctx, hit); err != nil {
		return fmt.Errorf("post hit: %w", err)
	}
	p.logger.Debug("hit delivered", zap.String("job_id", job.ID), zap.String("uri", payload.URI))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *HitProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("hit worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.wait(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.wait(ctx)
		}
	}
}

func (p *HitProcessor) wait(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
