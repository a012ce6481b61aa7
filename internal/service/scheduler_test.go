package service

import (
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/mythos-studio/internal/config"
	"github.com/MimeLyc/mythos-studio/internal/jobs"
)

type recordingQueue struct {
	mu       sync.Mutex
	requests []jobs.EnqueueRequest
	seen     map[string]bool
}

func (q *recordingQueue) Enqueue(req jobs.EnqueueRequest) (*jobs.VideoJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seen == nil {
		q.seen = make(map[string]bool)
	}
	job := &jobs.VideoJob{ID: req.DedupeKey, Source: req.Source, Payload: req.Payload}
	if q.seen[req.DedupeKey] {
		return job, false
	}
	q.seen[req.DedupeKey] = true
	q.requests = append(q.requests, req)
	return job, true
}

func TestScheduler_RunOnceRotatesTopics(t *testing.T) {
	queue := &recordingQueue{}
	s := NewScheduler(cron.New(), queue, "0 6 * * *", []string{"The churning of the ocean", "Rama returns home"})

	first := s.RunOnce()
	second := s.RunOnce()
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, "The churning of the ocean", first.Payload.Topic)
	assert.Equal(t, "Rama returns home", second.Payload.Topic)

	require.Len(t, queue.requests, 2)
	for _, req := range queue.requests {
		assert.Equal(t, Identity, req.Source)
		assert.Equal(t, Identity, req.Payload.UserID)
		assert.Equal(t, jobs.DedupeKey(Identity, req.Payload.Topic), req.DedupeKey)
	}

	// Wrapping around to a topic that is still queued does not enqueue again.
	s.RunOnce()
	assert.Len(t, queue.requests, 2)
}

func TestScheduler_SkipsInvalidTopics(t *testing.T) {
	queue := &recordingQueue{}
	s := NewScheduler(cron.New(), queue, "0 6 * * *", []string{"abc", "  ", "The death of Ravana", "Krishna lifts Govardhan"})

	assert.Equal(t, []string{"Krishna lifts Govardhan"}, s.Status().Topics)
}

func TestScheduler_DisabledWithoutExpressionOrTopics(t *testing.T) {
	engine := cron.New()

	s := NewScheduler(engine, &recordingQueue{}, "", []string{"Rama returns home"})
	require.NoError(t, s.Schedule())
	assert.Empty(t, engine.Entries())
	assert.False(t, s.Status().Enabled)

	s = NewScheduler(engine, &recordingQueue{}, "0 6 * * *", nil)
	require.NoError(t, s.Schedule())
	assert.Empty(t, engine.Entries())
	assert.Nil(t, s.RunOnce())
}

func TestScheduler_ApplyRuntimeSettingsReschedules(t *testing.T) {
	engine := cron.New()
	s := NewScheduler(engine, &recordingQueue{}, "0 0 * * *", []string{"Hanuman's leap to Lanka"})

	require.NoError(t, s.Schedule())
	require.Len(t, engine.Entries(), 1)

	err := s.ApplyRuntimeSettings(config.RuntimeSettings{CronExpr: "*/10 * * * *"})
	require.NoError(t, err)
	require.Len(t, engine.Entries(), 1)
	assert.Equal(t, "*/10 * * * *", s.Status().CronExpr)

	require.Error(t, s.Reschedule("every tuesday"))
	assert.Equal(t, "*/10 * * * *", s.Status().CronExpr)
	require.Len(t, engine.Entries(), 1)

	require.NoError(t, s.Reschedule(""))
	assert.Empty(t, engine.Entries())
	assert.False(t, s.Status().Enabled)
}

func TestScheduler_StatusReportsTrigger(t *testing.T) {
	s := NewScheduler(cron.New(), &recordingQueue{}, "0 6 * * *", []string{"Rama returns home"})
	s.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Schedule())

	status := s.Status()
	assert.True(t, status.Enabled)
	require.NotNil(t, status.Trigger)
	assert.Equal(t, time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC), status.Trigger.Next)

	s.RunOnce()
	assert.Equal(t, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), s.Status().LastRun)
}

func TestScheduler_CronTickEnqueues(t *testing.T) {
	queue := &recordingQueue{}
	engine := cron.New(cron.WithSeconds())
	s := NewScheduler(engine, queue, "", []string{"Rama returns home"})
	// Register a per-second entry directly so the test does not wait a minute.
	_, err := engine.AddFunc("* * * * * *", func() { s.RunOnce() })
	require.NoError(t, err)
	engine.Start()
	defer engine.Stop()

	require.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.requests) == 1
	}, 3*time.Second, 20*time.Millisecond)
}
