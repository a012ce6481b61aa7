package ratelimit

import (
	"context"
	"errors"
	"time"
)

// DayLayout is the calendar-day format stored with each record.
const DayLayout = "2006-01-02"

// ErrLimitReached is returned when a record is already at the daily maximum.
var ErrLimitReached = errors.New("daily video limit reached")

// Record is the persisted usage of one user key.
type Record struct {
	UserKey     string    `json:"user_key"`
	Count       int       `json:"count"`
	Date        string    `json:"date"`
	LastUpdated time.Time `json:"last_updated"`
}

// Stats summarizes today's usage across all keys.
type Stats struct {
	UniqueUsersToday int `json:"unique_users_today"`
	TotalVideosToday int `json:"total_videos_today"`
}

// Status is the result of a limit check.
type Status struct {
	Allowed   bool `json:"allowed"`
	Count     int  `json:"count"`
	Remaining int  `json:"remaining"`
	Max       int  `json:"max"`
}

// Store persists usage records. Implementations must perform rollover and
// the conditional increment atomically with respect to other callers.
type Store interface {
	// LoadUsage returns the record for userKey, creating it with a zero count
	// when absent and resetting it when its date is not day.
	LoadUsage(ctx context.Context, userKey, day string, now time.Time) (Record, error)
	// IncrementUsage adds one to the record when its count is below max and
	// returns the updated record, or ErrLimitReached.
	IncrementUsage(ctx context.Context, userKey, day string, max int, now time.Time) (Record, error)
	// UsageStats aggregates records dated day.
	UsageStats(ctx context.Context, day string) (Stats, error)
}
