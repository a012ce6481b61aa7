package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	jobs map[string]*VideoJob
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]*VideoJob)}
}

func (m *memoryStore) LoadJobs(_ context.Context) ([]*VideoJob, error) {
	ret := make([]*VideoJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		ret = append(ret, cloneJob(j))
	}
	return ret, nil
}

func (m *memoryStore) UpsertJob(_ context.Context, job *VideoJob) error {
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memoryStore) DeleteJob(_ context.Context, jobID string) error {
	delete(m.jobs, jobID)
	return nil
}

func TestQueue_RecoversPendingAndRunningJobsFromStore(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.jobs["job-1"] = &VideoJob{
		ID:        "job-1",
		Source:    "cron",
		DedupeKey: "u1|Ganesha and the moon",
		Status:    StatusPending,
		Payload: JobPayload{
			Topic:  "Ganesha and the moon",
			UserID: "u1",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.jobs["job-2"] = &VideoJob{
		ID:        "job-2",
		Source:    "cron",
		DedupeKey: "u2|Hanuman leaps to Lanka",
		Status:    StatusRunning,
		Payload: JobPayload{
			Topic:  "Hanuman leaps to Lanka",
			UserID: "u2",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	q := NewQueue(1, store)

	jobs := q.List()
	require.Len(t, jobs, 2)
	byID := map[string]*VideoJob{}
	for _, j := range jobs {
		byID[j.ID] = j
	}
	require.Contains(t, byID, "job-2")
	assert.Equal(t, StatusPending, byID["job-2"].Status)

	q.Start(func(_ context.Context, _ *VideoJob) (*JobResult, error) { return &JobResult{}, nil })
	defer q.Stop()

	require.Eventually(t, func() bool {
		got, ok := q.Get("job-1")
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		got, ok := q.Get("job-2")
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}
