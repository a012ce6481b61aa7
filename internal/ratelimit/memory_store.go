package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps usage in process memory. Counts are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// current must be called with mu held.
func (s *MemoryStore) current(userKey, day string, now time.Time) Record {
	rec, ok := s.records[userKey]
	if !ok {
		rec = Record{UserKey: userKey, Date: day, LastUpdated: now}
	}
	if rec.Date != day {
		rec.Count = 0
		rec.Date = day
		rec.LastUpdated = now
	}
	s.records[userKey] = rec
	return rec
}

func (s *MemoryStore) LoadUsage(_ context.Context, userKey, day string, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(userKey, day, now), nil
}

func (s *MemoryStore) IncrementUsage(_ context.Context, userKey, day string, max int, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.current(userKey, day, now)
	if rec.Count >= max {
		return rec, ErrLimitReached
	}
	rec.Count++
	rec.LastUpdated = now
	s.records[userKey] = rec
	return rec, nil
}

func (s *MemoryStore) UsageStats(_ context.Context, day string) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats Stats
	for _, rec := range s.records {
		if rec.Date != day {
			continue
		}
		stats.UniqueUsersToday++
		stats.TotalVideosToday += rec.Count
	}
	return stats, nil
}
