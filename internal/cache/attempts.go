package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// AttemptCounter limits how often a key may try something within a window.
type AttemptCounter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryAttempts is a per-process sliding window.
type MemoryAttempts struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func NewMemoryAttempts(max int, window time.Duration) *MemoryAttempts {
	max, window = normalizeLimit(max, window)
	return &MemoryAttempts{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *MemoryAttempts) Allow(_ context.Context, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false, nil
	}
	l.entries[key] = append(kept, now)
	return true, nil
}

// RedisAttempts shares a fixed window counter between instances.
type RedisAttempts struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewRedisAttempts(client *redis.Client, prefix string, max int, window time.Duration) *RedisAttempts {
	max, window = normalizeLimit(max, window)
	return &RedisAttempts{client: client, prefix: prefix, max: max, window: window}
}

func (l *RedisAttempts) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().UTC().Truncate(l.window).Unix()
	redisKey := fmt.Sprintf("specsbiz:attempts:%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.max), nil
}

func normalizeLimit(max int, window time.Duration) (int, time.Duration) {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return max, window
}
