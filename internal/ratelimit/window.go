package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window records admission timestamps over a sliding time window.
type Window interface {
	// TryAdmit drops entries that left the window as of now. If fewer than
	// max remain it records now and reports true. Otherwise it reports how
	// long until the oldest entry leaves the window.
	TryAdmit(ctx context.Context, now time.Time, max int) (bool, time.Duration, error)
	// Count returns the number of entries still inside the window at now.
	Count(ctx context.Context, now time.Time) (int, error)
}

// MemoryWindow keeps timestamps in process. It is not safe for concurrent
// use on its own; Limiter serializes access.
type MemoryWindow struct {
	size  time.Duration
	times []time.Time
}

func NewMemoryWindow(size time.Duration) *MemoryWindow {
	return &MemoryWindow{size: size}
}

func (w *MemoryWindow) evict(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	w.times = w.times[i:]
}

func (w *MemoryWindow) TryAdmit(_ context.Context, now time.Time, max int) (bool, time.Duration, error) {
	w.evict(now)
	if len(w.times) < max {
		w.times = append(w.times, now)
		return true, 0, nil
	}
	return false, w.times[0].Add(w.size).Sub(now), nil
}

func (w *MemoryWindow) Count(_ context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-w.size)
	n := 0
	for _, t := range w.times {
		if t.After(cutoff) {
			n++
		}
	}
	return n, nil
}

// admitScript performs evict, count, and record as one atomic step so that
// replicas sharing the key never admit past the ceiling together.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local size = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - size)
local count = redis.call('ZCARD', key)
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, size + 30000)
  return {1, 0}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, tonumber(oldest[2]) + size - now}
`)

// RedisWindow keeps timestamps in a Redis sorted set scored by unix
// milliseconds, shared by every process using the same key.
type RedisWindow struct {
	rdb  redis.Cmdable
	key  string
	size time.Duration
	seq  atomic.Int64
}

func NewRedisWindow(rdb redis.Cmdable, key string, size time.Duration) *RedisWindow {
	return &RedisWindow{rdb: rdb, key: key, size: size}
}

func (w *RedisWindow) TryAdmit(ctx context.Context, now time.Time, max int) (bool, time.Duration, error) {
	member := fmt.Sprintf("%d:%d", now.UnixNano(), w.seq.Add(1))
	res, err := admitScript.Run(ctx, w.rdb, []string{w.key},
		now.UnixMilli(), w.size.Milliseconds(), max, member).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("running admit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("admit script returned %d values", len(res))
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	return false, time.Duration(res[1]) * time.Millisecond, nil
}

func (w *RedisWindow) Count(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-w.size).UnixMilli()
	n, err := w.rdb.ZCount(ctx, w.key, "("+strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("counting window entries: %w", err)
	}
	return int(n), nil
}
