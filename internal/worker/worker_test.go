package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/stats"
	"github.com/aura-events/backend/pkg/queue"
)

type memoryQueue struct {
	mu      sync.Mutex
	jobs    chan *queue.Job
	retried []*queue.Job
}

func newMemoryQueue(jobs ...*queue.Job) *memoryQueue {
	q := &memoryQueue{jobs: make(chan *queue.Job, 16)}
	for _, j := range jobs {
		q.jobs <- j
	}
	return q
}

func (q *memoryQueue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case j := <-q.jobs:
		return j, queue.QueueHits, nil
	}
}

func (q *memoryQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func (q *memoryQueue) retries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.retried)
}

type recordingSender struct {
	mu   sync.Mutex
	hits []stats.Hit
	err  error
}

func (s *recordingSender) PostHit(_ context.Context, hit stats.Hit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.hits = append(s.hits, hit)
	return nil
}

func (s *recordingSender) delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits)
}

func hitJob(t *testing.T, uri string) *queue.Job {
	t.Helper()
	job, err := queue.NewHitJob(queue.HitPayload{App: "ewm-main-service", URI: uri, IP: "10.0.0.1", Timestamp: time.Now()})
	require.NoError(t, err)
	return job
}

func TestProcessDeliversHit(t *testing.T) {
	sender := &recordingSender{}
	p := NewHitProcessor(newMemoryQueue(), sender, time.Millisecond, nil)

	require.NoError(t, p.Process(context.Background(), hitJob(t, "/events/1")))
	require.Len(t, sender.hits, 1)
	assert.Equal(t, "/events/1", sender.hits[0].URI)
	assert.Equal(t, "10.0.0.1", sender.hits[0].IP)
}

func TestProcessRejectsUnknownJob(t *testing.T) {
	p := NewHitProcessor(newMemoryQueue(), &recordingSender{}, time.Millisecond, nil)
	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "recording"})
	assert.Error(t, err)
}

func TestRunDeliversAndRetries(t *testing.T) {
	q := newMemoryQueue(hitJob(t, "/events"), hitJob(t, "/events/2"))
	sender := &recordingSender{}
	p := NewHitProcessor(q, sender, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sender.delivered() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Zero(t, q.retries())
}

func TestRunRetriesFailedDelivery(t *testing.T) {
	q := newMemoryQueue(hitJob(t, "/events"))
	sender := &recordingSender{err: errors.New("stats down")}
	p := NewHitProcessor(q, sender, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return q.retries() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 1, q.retried[0].Attempt)
}
