package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MimeLyc/mythos-studio/internal/ratelimit"
)

// LoadUsage creates the record when absent and resets it when its date is
// not day, then reads it back, all in one transaction.
func (s *SQLiteStore) LoadUsage(ctx context.Context, userKey, day string, now time.Time) (ratelimit.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ratelimit.Record{}, fmt.Errorf("begin usage tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO usage (user_key, count, date, last_updated) VALUES (?, 0, ?, ?)
		 ON CONFLICT(user_key) DO UPDATE SET
			count = 0,
			date = excluded.date,
			last_updated = excluded.last_updated
		 WHERE usage.date <> excluded.date`,
		userKey, day, now.UTC(),
	); err != nil {
		return ratelimit.Record{}, fmt.Errorf("upsert usage: %w", err)
	}

	rec := ratelimit.Record{UserKey: userKey}
	if err := tx.QueryRowContext(ctx,
		`SELECT count, date, last_updated FROM usage WHERE user_key = ?`, userKey,
	).Scan(&rec.Count, &rec.Date, &rec.LastUpdated); err != nil {
		return ratelimit.Record{}, fmt.Errorf("read usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ratelimit.Record{}, fmt.Errorf("commit usage tx: %w", err)
	}
	return rec, nil
}

// IncrementUsage is a single conditional upsert: a stale record restarts at
// one, a current record grows only while below max.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, userKey, day string, max int, now time.Time) (ratelimit.Record, error) {
	rec := ratelimit.Record{UserKey: userKey, Date: day, LastUpdated: now.UTC()}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO usage (user_key, count, date, last_updated) VALUES (?, 1, ?, ?)
		 ON CONFLICT(user_key) DO UPDATE SET
			count = CASE WHEN usage.date = excluded.date THEN usage.count + 1 ELSE 1 END,
			date = excluded.date,
			last_updated = excluded.last_updated
		 WHERE usage.date <> excluded.date OR usage.count < ?
		 RETURNING count`,
		userKey, day, now.UTC(), max,
	).Scan(&rec.Count)
	if errors.Is(err, sql.ErrNoRows) {
		rec.Count = max
		return rec, ratelimit.ErrLimitReached
	}
	if err != nil {
		return ratelimit.Record{}, fmt.Errorf("increment usage: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) UsageStats(ctx context.Context, day string) (ratelimit.Stats, error) {
	var stats ratelimit.Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(count), 0) FROM usage WHERE date = ?`, day,
	).Scan(&stats.UniqueUsersToday, &stats.TotalVideosToday); err != nil {
		return ratelimit.Stats{}, fmt.Errorf("usage stats: %w", err)
	}
	return stats, nil
}
