package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisUsagePrefix = "mythos:usage:"
	redisDayPrefix   = "mythos:usage-day:"
	redisDayTTL      = 48 * time.Hour
)

// loadScript resets a stale record and registers the key for the day.
// KEYS: record, day set. ARGV: day, now, user key, ttl.
var loadScript = redis.NewScript(`
local date = redis.call('HGET', KEYS[1], 'date')
if (not date) or date ~= ARGV[1] then
  redis.call('HSET', KEYS[1], 'count', 0, 'date', ARGV[1], 'last_updated', ARGV[2])
end
redis.call('SADD', KEYS[2], ARGV[3])
redis.call('EXPIRE', KEYS[2], ARGV[4])
return {tonumber(redis.call('HGET', KEYS[1], 'count')), redis.call('HGET', KEYS[1], 'last_updated')}
`)

// incrementScript rolls over like loadScript, then adds one unless the count
// is at the maximum, in which case it returns -1.
// KEYS: record, day set. ARGV: day, now, user key, ttl, max.
var incrementScript = redis.NewScript(`
local date = redis.call('HGET', KEYS[1], 'date')
if (not date) or date ~= ARGV[1] then
  redis.call('HSET', KEYS[1], 'count', 0, 'date', ARGV[1], 'last_updated', ARGV[2])
end
redis.call('SADD', KEYS[2], ARGV[3])
redis.call('EXPIRE', KEYS[2], ARGV[4])
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
if count >= tonumber(ARGV[5]) then
  return -1
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSET', KEYS[1], 'last_updated', ARGV[2])
return count
`)

// RedisStore keeps usage records in Redis hashes, for deployments that run
// several studio processes against one quota.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// NewRedisClient dials addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) keys(userKey, day string) []string {
	return []string{redisUsagePrefix + userKey, redisDayPrefix + day}
}

func (s *RedisStore) LoadUsage(ctx context.Context, userKey, day string, now time.Time) (Record, error) {
	res, err := loadScript.Run(ctx, s.rdb, s.keys(userKey, day),
		day, now.UTC().Format(time.RFC3339), userKey, int(redisDayTTL.Seconds())).Slice()
	if err != nil {
		return Record{}, fmt.Errorf("load usage: %w", err)
	}
	if len(res) != 2 {
		return Record{}, fmt.Errorf("load usage: unexpected reply %v", res)
	}

	count, _ := res[0].(int64)
	rec := Record{UserKey: userKey, Count: int(count), Date: day}
	if raw, ok := res[1].(string); ok {
		rec.LastUpdated, _ = time.Parse(time.RFC3339, raw)
	}
	return rec, nil
}

func (s *RedisStore) IncrementUsage(ctx context.Context, userKey, day string, max int, now time.Time) (Record, error) {
	count, err := incrementScript.Run(ctx, s.rdb, s.keys(userKey, day),
		day, now.UTC().Format(time.RFC3339), userKey, int(redisDayTTL.Seconds()), max).Int64()
	if err != nil {
		return Record{}, fmt.Errorf("increment usage: %w", err)
	}
	if count < 0 {
		return Record{UserKey: userKey, Count: max, Date: day}, ErrLimitReached
	}
	return Record{UserKey: userKey, Count: int(count), Date: day, LastUpdated: now.UTC()}, nil
}

func (s *RedisStore) UsageStats(ctx context.Context, day string) (Stats, error) {
	members, err := s.rdb.SMembers(ctx, redisDayPrefix+day).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("usage stats: %w", err)
	}

	var stats Stats
	for _, userKey := range members {
		vals, err := s.rdb.HMGet(ctx, redisUsagePrefix+userKey, "count", "date").Result()
		if err != nil {
			return Stats{}, fmt.Errorf("usage stats: %w", err)
		}
		date, _ := vals[1].(string)
		if date != day {
			continue
		}
		raw, _ := vals[0].(string)
		count, _ := strconv.Atoi(raw)
		stats.UniqueUsersToday++
		stats.TotalVideosToday += count
	}
	return stats, nil
}
