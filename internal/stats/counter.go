// Package stats holds the view-count capability used by the event service, its HTTP client,
// and the stats service that records and aggregates endpoint hits.
package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/pkg/queue"
)

// EventsURI is the hit URI of the public event listing.
const EventsURI = "/events"

// ViewWindow is how far back view counts look.
const ViewWindow = 365 * 24 * time.Hour

// EventURI returns the hit URI of one public event.
func EventURI(id uuid.UUID) string {
	return EventsURI + "/" + id.String()
}

// Hit is one request to a public endpoint.
type Hit struct {
	App       string
	URI       string
	IP        string
	Timestamp time.Time
}

// Window bounds a hit count query, both ends inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowUntil returns the default view window ending at now.
func WindowUntil(now time.Time) Window {
	return Window{Start: now.Add(-ViewWindow), End: now}
}

// ViewCounter records hits and reports hit counts per URI. Both calls are best-effort for callers:
// RecordHit failures are absorbed, GetHits errors mean "no data".
type ViewCounter interface {
	RecordHit(ctx context.Context, hit Hit)
	GetHits(ctx context.Context, uris []string, unique bool, window Window) (map[string]int64, error)
}

// HitEnqueuer hands a hit to the delivery queue.
type HitEnqueuer interface {
	EnqueueHit(ctx context.Context, payload queue.HitPayload) error
}

// StatsReader fetches aggregated hits.
type StatsReader interface {
	GetHits(ctx context.Context, uris []string, unique bool, window Window) (map[string]int64, error)
}

// QueuedCounter records hits through the Redis queue and reads counts from the stats service.
type QueuedCounter struct {
	queue  HitEnqueuer
	reader StatsReader
	logger *zap.Logger
}

// NewQueuedCounter creates a ViewCounter backed by q for writes and reader for counts.
func NewQueuedCounter(q HitEnqueuer, reader StatsReader, logger *zap.Logger) *QueuedCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueuedCounter{queue: q, reader: reader, logger: logger}
}

// RecordHit makes one enqueue attempt; a failure is logged and the hit dropped.
func (c *QueuedCounter) RecordHit(ctx context.Context, hit Hit) {
	err := c.queue.EnqueueHit(ctx, queue.HitPayload{
		App:       hit.App,
		URI:       hit.URI,
		IP:        hit.IP,
		Timestamp: hit.Timestamp,
	})
	if err != nil {
		c.logger.Warn("hit dropped", zap.String("uri", hit.URI), zap.Error(err))
	}
}

// GetHits returns counts for uris. An empty uris slice skips the call.
func (c *QueuedCounter) GetHits(ctx context.Context, uris []string, unique bool, window Window) (map[string]int64, error) {
	if len(uris) == 0 {
		return map[string]int64{}, nil
	}
	return c.reader.GetHits(ctx, uris, unique, window)
}
