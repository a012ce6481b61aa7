package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_Worker_TransitionsStatus(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *VideoJob) (*JobResult, error) { return &JobResult{}, nil })
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "k1",
	})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		if !ok || got == nil {
			return false
		}
		return got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Worker_RecordsResult(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, job *VideoJob) (*JobResult, error) {
		return &JobResult{VideoPath: "/out/" + job.ID + ".mp4", TotalScenes: 4, SucceededScenes: 3}, nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "k-result"})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(job.ID)
	require.NotNil(t, got.Result)
	require.Equal(t, "/out/"+job.ID+".mp4", got.Result.VideoPath)
	require.Equal(t, 3, got.Result.SucceededScenes)

	// Snapshots are copies.
	got.Result.VideoPath = "mutated"
	again, _ := q.Get(job.ID)
	require.Equal(t, "/out/"+job.ID+".mp4", again.Result.VideoPath)
}

func TestQueue_Worker_PanicMarksFailed(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *VideoJob) (*JobResult, error) {
		panic("assembler exploded")
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "k-panic"})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusFailed && strings.Contains(got.Error, "assembler exploded")
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, 0, q.Active())
}

func TestQueue_Stop_CancelsRunningJob(t *testing.T) {
	q := NewQueue(1, nil)
	started := make(chan struct{})
	q.Start(func(ctx context.Context, _ *VideoJob) (*JobResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "k-stop"})
	<-started

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
