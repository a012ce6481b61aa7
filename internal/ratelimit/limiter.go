// Package ratelimit enforces a per-identity daily video quota.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/MimeLyc/mythos-studio/pkg/log"
)

// DefaultMaxPerDay matches the public deployment's quota.
const DefaultMaxPerDay = 3

type Option func(*Limiter)

// WithClock overrides the time source, used to pin the calendar day in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter checks and consumes the daily quota of hashed identities.
type Limiter struct {
	store     Store
	maxPerDay int
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]int
}

func New(store Store, maxPerDay int, opts ...Option) *Limiter {
	if maxPerDay <= 0 {
		maxPerDay = DefaultMaxPerDay
	}
	l := &Limiter{
		store:     store,
		maxPerDay: maxPerDay,
		now:       time.Now,
		inflight:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxPerDay returns the configured quota.
func (l *Limiter) MaxPerDay() int {
	return l.maxPerDay
}

func (l *Limiter) today() string {
	return l.now().Format(DayLayout)
}

// UserKey derives the stored key from a raw identifier and today's date.
// The raw identifier is never persisted.
func (l *Limiter) UserKey(raw string) string {
	sum := sha256.Sum256([]byte(raw + "-" + l.today()))
	return hex.EncodeToString(sum[:])
}

// CheckLimit reports whether userKey may start another video today.
func (l *Limiter) CheckLimit(ctx context.Context, userKey string) (Status, error) {
	return l.checkOn(ctx, userKey, l.today())
}

func (l *Limiter) checkOn(ctx context.Context, userKey, day string) (Status, error) {
	rec, err := l.store.LoadUsage(ctx, userKey, day, l.now())
	if err != nil {
		return Status{}, fmt.Errorf("failed to load usage: %w", err)
	}
	return l.status(rec.Count), nil
}

func (l *Limiter) status(count int) Status {
	remaining := l.maxPerDay - count
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Allowed:   count < l.maxPerDay,
		Count:     count,
		Remaining: remaining,
		Max:       l.maxPerDay,
	}
}

// Increment consumes one unit of quota. It must only be called after a
// video was produced.
func (l *Limiter) Increment(ctx context.Context, userKey string) (Status, error) {
	return l.incrementOn(ctx, userKey, l.today())
}

func (l *Limiter) incrementOn(ctx context.Context, userKey, day string) (Status, error) {
	rec, err := l.store.IncrementUsage(ctx, userKey, day, l.maxPerDay, l.now())
	if err != nil {
		return Status{}, fmt.Errorf("failed to increment usage: %w", err)
	}
	log.Info("Usage for %s... is now %d/%d", shortKey(userKey), rec.Count, l.maxPerDay)
	return l.status(rec.Count), nil
}

// Stats returns today's aggregate usage.
func (l *Limiter) Stats(ctx context.Context) (Stats, error) {
	stats, err := l.store.UsageStats(ctx, l.today())
	if err != nil {
		return Stats{}, fmt.Errorf("failed to load usage stats: %w", err)
	}
	return stats, nil
}

// Reservation holds one in-flight quota slot until it is committed or released.
// The slot belongs to the day it was reserved on, even if the job finishes
// after midnight.
type Reservation struct {
	limiter *Limiter
	userKey string
	day     string
	once    sync.Once
}

// Reserve checks the limit and holds a slot for userKey, so concurrent jobs
// from the same identity cannot together exceed the quota.
func (l *Limiter) Reserve(ctx context.Context, userKey string) (*Reservation, Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.today()
	status, err := l.checkOn(ctx, userKey, day)
	if err != nil {
		return nil, Status{}, err
	}

	pending := l.inflight[userKey]
	if status.Count+pending >= l.maxPerDay {
		status.Allowed = false
		return nil, status, ErrLimitReached
	}
	l.inflight[userKey] = pending + 1

	return &Reservation{limiter: l, userKey: userKey, day: day}, status, nil
}

func (l *Limiter) release(userKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := l.inflight[userKey]; n > 1 {
		l.inflight[userKey] = n - 1
	} else {
		delete(l.inflight, userKey)
	}
}

// UserKey returns the key the reservation was made for.
func (r *Reservation) UserKey() string {
	return r.userKey
}

// Commit consumes the reserved slot. Calling Commit or Release again is a no-op.
func (r *Reservation) Commit(ctx context.Context) (Status, error) {
	var (
		status Status
		err    error
	)
	done := false
	r.once.Do(func() {
		done = true
		defer r.limiter.release(r.userKey)
		status, err = r.limiter.incrementOn(ctx, r.userKey, r.day)
	})
	if !done {
		return Status{}, fmt.Errorf("reservation already settled")
	}
	return status, err
}

// Release frees the slot without consuming quota.
func (r *Reservation) Release() {
	r.once.Do(func() {
		r.limiter.release(r.userKey)
	})
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
