package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/mythos-studio/internal/config"
	"github.com/MimeLyc/mythos-studio/internal/jobs"
	"github.com/MimeLyc/mythos-studio/internal/studio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	called bool
	err    error
}

func (f *fakeScheduler) Schedule() error {
	f.called = true
	return f.err
}

type fakeCron struct {
	started bool
	stopped bool
}

func (f *fakeCron) Start() {
	f.started = true
}

func (f *fakeCron) Stop() context.Context {
	f.stopped = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

type fakeHTTP struct {
	listenCalled chan struct{}
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	listenErr    error
}

func newFakeHTTP() *fakeHTTP {
	return &fakeHTTP{
		listenCalled: make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

func (f *fakeHTTP) ListenAndServe(string) error {
	close(f.listenCalled)
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.shutdownCh
	return http.ErrServerClosed
}

func (f *fakeHTTP) Shutdown(context.Context) error {
	f.shutdownOnce.Do(func() { close(f.shutdownCh) })
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Addr:      "127.0.0.1:0",
			UIEnabled: true,
		},
	}
}

func TestMain_StartsCronAndHTTP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := &fakeScheduler{}
	cronEngine := &fakeCron{}
	httpSrv := newFakeHTTP()

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- runWithComponents(ctx, testConfig(), sched, cronEngine, httpSrv)
	}()

	select {
	case <-httpSrv.listenCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("http server did not start")
	}

	cancel()

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runWithComponents did not exit after cancellation")
	}

	assert.True(t, sched.called)
	assert.True(t, cronEngine.started)
	assert.True(t, cronEngine.stopped)
}

func TestMain_ScheduleFailureStopsStartup(t *testing.T) {
	sched := &fakeScheduler{err: errors.New("bad cron")}
	cronEngine := &fakeCron{}

	err := runWithComponents(context.Background(), testConfig(), sched, cronEngine, newFakeHTTP())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad cron")
	assert.False(t, cronEngine.started)
}

func TestMain_ListenFailureIsReturned(t *testing.T) {
	httpSrv := newFakeHTTP()
	httpSrv.listenErr = errors.New("address already in use")
	cronEngine := &fakeCron{}

	err := runWithComponents(context.Background(), testConfig(), &fakeScheduler{}, cronEngine, httpSrv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.True(t, cronEngine.stopped)
}

type fakeRunner struct {
	got    studio.Request
	report *studio.Report
	err    error
}

func (f *fakeRunner) Run(_ context.Context, req studio.Request) (*studio.Report, error) {
	f.got = req
	return f.report, f.err
}

func TestVideoExecutor_MapsReport(t *testing.T) {
	runner := &fakeRunner{report: &studio.Report{
		JobID:           "job-7",
		VideoPath:       "/out/job-7.mp4",
		TotalScenes:     4,
		SucceededScenes: 3,
		DroppedScenes:   1,
		Remaining:       1,
		CaptionsPath:    "/out/job-7.srt",
	}}
	exec := videoExecutor(runner)

	result, err := exec(context.Background(), &jobs.VideoJob{
		ID:      "job-7",
		Payload: jobs.JobPayload{Topic: "Rama returns home", UserID: "203.0.113.7"},
	})
	require.NoError(t, err)
	assert.Equal(t, &jobs.JobResult{VideoPath: "/out/job-7.mp4", TotalScenes: 4, SucceededScenes: 3, CaptionsPath: "/out/job-7.srt"}, result)
	assert.Equal(t, studio.Request{JobID: "job-7", Topic: "Rama returns home", UserID: "203.0.113.7"}, runner.got)

	runner.err = studio.NewError(studio.ErrQuota, "daily video limit reached")
	runner.report = nil
	result, err = exec(context.Background(), &jobs.VideoJob{ID: "job-8"})
	assert.Nil(t, result)
	assert.True(t, studio.IsErrorType(err, studio.ErrQuota))
}
