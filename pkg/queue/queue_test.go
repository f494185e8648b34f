package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHitJob(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job, err := NewHitJob(HitPayload{App: "ewm-main-service", URI: "/events", IP: "10.0.0.1", Timestamp: ts})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobTypeHit, job.Type)
	assert.Zero(t, job.Attempt)

	var got HitPayload
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	assert.Equal(t, "/events", got.URI)
	assert.True(t, ts.Equal(got.Timestamp))
}

func TestNewQueueDefaultsRetries(t *testing.T) {
	q := NewQueue(nil, 0, nil)
	assert.Equal(t, DefaultMaxRetries, q.maxRetries)
	assert.NotNil(t, q.logger)
}
