package persistence

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/mythos-studio/internal/jobs"
	"github.com/MimeLyc/mythos-studio/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	job := &jobs.VideoJob{
		ID:        "job-1",
		Source:    "manual",
		DedupeKey: jobs.DedupeKey("203.0.113.7", "The birth of Ganesha"),
		Payload: jobs.JobPayload{
			Topic:  "The birth of Ganesha",
			UserID: "203.0.113.7",
		},
		Status:    jobs.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, job.ID, all[0].ID)
	assert.Equal(t, job.Status, all[0].Status)
	assert.Equal(t, job.Payload, all[0].Payload)
	assert.Nil(t, all[0].Result)

	job.Status = jobs.StatusSuccess
	job.Result = &jobs.JobResult{VideoPath: "/out/job-1.mp4", TotalScenes: 4, SucceededScenes: 3, CaptionsPath: "/out/job-1.srt"}
	job.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err = store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, jobs.StatusSuccess, all[0].Status)
	require.NotNil(t, all[0].Result)
	assert.Equal(t, *job.Result, *all[0].Result)

	require.NoError(t, store.DeleteJob(ctx, job.ID))
	all, err = store.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_ReopenKeepsMigrations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "studio.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = store.IncrementUsage(context.Background(), "k", "2026-03-14", 3, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	rec, err := reopened.LoadUsage(context.Background(), "k", "2026-03-14", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count)
}

func TestSQLiteStore_UsageRollover(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec, err := store.LoadUsage(ctx, "k", "2026-03-14", now)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Count)
	assert.Equal(t, "2026-03-14", rec.Date)

	for i := 1; i <= 3; i++ {
		rec, err = store.IncrementUsage(ctx, "k", "2026-03-14", 3, now)
		require.NoError(t, err)
		assert.Equal(t, i, rec.Count)
	}

	_, err = store.IncrementUsage(ctx, "k", "2026-03-14", 3, now)
	assert.ErrorIs(t, err, ratelimit.ErrLimitReached)

	rec, err = store.LoadUsage(ctx, "k", "2026-03-15", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Count)
	assert.Equal(t, "2026-03-15", rec.Date)

	// An increment on a stale record restarts the count.
	_, err = store.IncrementUsage(ctx, "other", "2026-03-14", 3, now)
	require.NoError(t, err)
	rec, err = store.IncrementUsage(ctx, "other", "2026-03-15", 3, now)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count)
}

func TestSQLiteStore_UsageStats(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := store.IncrementUsage(ctx, "a", "2026-03-14", 3, now)
	require.NoError(t, err)
	_, err = store.IncrementUsage(ctx, "a", "2026-03-14", 3, now)
	require.NoError(t, err)
	_, err = store.LoadUsage(ctx, "b", "2026-03-14", now)
	require.NoError(t, err)
	_, err = store.IncrementUsage(ctx, "c", "2026-03-13", 3, now)
	require.NoError(t, err)

	stats, err := store.UsageStats(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Stats{UniqueUsersToday: 2, TotalVideosToday: 2}, stats)
}

func TestSQLiteStore_LimiterConcurrentIncrements(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	limiter := ratelimit.New(store, 3)
	ctx := context.Background()
	key := limiter.UserKey("203.0.113.7")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := limiter.Increment(ctx, key); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ratelimit.ErrLimitReached)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	status, err := limiter.CheckLimit(ctx, key)
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, 3, status.Count)
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12_more.sql"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}
