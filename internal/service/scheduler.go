// Package service runs configured topics on a cron schedule.
package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/mythos-studio/internal/config"
	"github.com/MimeLyc/mythos-studio/internal/jobs"
	"github.com/MimeLyc/mythos-studio/internal/studio"
	"github.com/MimeLyc/mythos-studio/pkg/icron"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

// Identity is the quota identity scheduled jobs run under.
const Identity = "scheduler"

// Enqueuer is the part of the job queue the scheduler needs.
type Enqueuer interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.VideoJob, bool)
}

// Status describes the current schedule.
type Status struct {
	Enabled  bool               `json:"enabled"`
	CronExpr string             `json:"cron_expr"`
	Topics   []string           `json:"topics"`
	LastRun  time.Time          `json:"last_run"`
	Trigger  *icron.TriggerInfo `json:"trigger,omitempty"`
}

// Scheduler enqueues one configured topic per cron tick, rotating through
// the list.
type Scheduler struct {
	cron   *cron.Cron
	queue  Enqueuer
	topics []string
	now    func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	cronExpr  string
	entryID   cron.EntryID
	scheduled bool
	cursor    int
	lastRun   time.Time
}

func NewScheduler(cronEngine *cron.Cron, queue Enqueuer, cronExpr string, topics []string) *Scheduler {
	valid := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if err := studio.ValidateTopic(topic); err != nil {
			log.Warn("Skipping scheduled topic %q: %v", topic, err)
			continue
		}
		valid = append(valid, topic)
	}
	return &Scheduler{
		cron:     cronEngine,
		queue:    queue,
		topics:   valid,
		now:      time.Now,
		cronExpr: strings.TrimSpace(cronExpr),
	}
}

// Schedule registers the cron entry. An empty expression or topic list
// leaves scheduling disabled.
func (s *Scheduler) Schedule() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked()
}

func (s *Scheduler) scheduleLocked() error {
	if s.scheduled {
		s.cron.Remove(s.entryID)
		s.scheduled = false
	}
	if s.cronExpr == "" || len(s.topics) == 0 {
		log.Info("Scheduler disabled (cron %q, %d topics)", s.cronExpr, len(s.topics))
		return nil
	}

	id, err := s.cron.AddFunc(s.cronExpr, func() { s.RunOnce() })
	if err != nil {
		return fmt.Errorf("failed to schedule %q: %w", s.cronExpr, err)
	}
	s.entryID = id
	s.scheduled = true
	log.Info("Scheduled %d topics on %q", len(s.topics), s.cronExpr)
	return nil
}

// Reschedule replaces the cron expression. An invalid expression keeps the
// current schedule.
func (s *Scheduler) Reschedule(cronExpr string) error {
	cronExpr = strings.TrimSpace(cronExpr)
	if cronExpr != "" {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cronExpr == s.cronExpr && (s.scheduled || cronExpr == "") {
		return nil
	}
	s.cronExpr = cronExpr
	return s.scheduleLocked()
}

// ApplyRuntimeSettings picks up a changed cron expression.
func (s *Scheduler) ApplyRuntimeSettings(next config.RuntimeSettings) error {
	return s.Reschedule(next.CronExpr)
}

// RunOnce enqueues the next topic. Overlapping ticks collapse into one.
func (s *Scheduler) RunOnce() *jobs.VideoJob {
	v, _, _ := s.group.Do("run", func() (any, error) {
		s.mu.Lock()
		if len(s.topics) == 0 {
			s.mu.Unlock()
			return (*jobs.VideoJob)(nil), nil
		}
		topic := s.topics[s.cursor%len(s.topics)]
		s.cursor++
		s.lastRun = s.now()
		s.mu.Unlock()

		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    Identity,
			DedupeKey: jobs.DedupeKey(Identity, topic),
			Payload: jobs.JobPayload{
				Topic:  topic,
				UserID: Identity,
			},
		})
		if created {
			log.Info("Scheduled job %s for topic %q", job.ID, topic)
		} else {
			log.Info("Topic %q is already queued as %s", topic, job.ID)
		}
		return job, nil
	})
	job, _ := v.(*jobs.VideoJob)
	return job
}

// Status reports the schedule and its next fire time.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	ret := Status{
		Enabled:  s.scheduled,
		CronExpr: s.cronExpr,
		Topics:   append([]string(nil), s.topics...),
		LastRun:  s.lastRun,
	}
	s.mu.Unlock()

	if ret.Enabled {
		if info, err := icron.GetTriggerInfo(ret.CronExpr, s.now()); err == nil {
			ret.Trigger = info
		}
	}
	return ret
}
