package detect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle suppresses duplicate alerts for one underlying condition.
// Allow returns true at most once per key per window.
type Throttle interface {
	Allow(ctx context.Context, key string, window time.Duration) bool
}

// RedisThrottle shares the cool-down across gateway processes via
// SET NX PX. A Redis failure lets the alert through: a duplicate alert
// beats a silently missing one.
type RedisThrottle struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisThrottle(rdb *redis.Client, log *slog.Logger) *RedisThrottle {
	if log == nil {
		log = slog.Default()
	}
	return &RedisThrottle{rdb: rdb, log: log}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string, window time.Duration) bool {
	ok, err := t.rdb.SetNX(ctx, "cooldown:"+key, 1, window).Result()
	if err != nil {
		t.log.Error("alert throttle check failed; allowing", "key", key, "err", err)
		return true
	}
	return ok
}

// MemoryThrottle is a process-local throttle for tests and single-process
// deployments.
type MemoryThrottle struct {
	mu    sync.Mutex
	until map[string]time.Time
	clock func() time.Time
}

func NewMemoryThrottle() *MemoryThrottle {
	return &MemoryThrottle{until: make(map[string]time.Time), clock: time.Now}
}

// SetClock replaces the time source. Test hook.
func (t *MemoryThrottle) SetClock(clock func() time.Time) { t.clock = clock }

func (t *MemoryThrottle) Allow(ctx context.Context, key string, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	if u, ok := t.until[key]; ok && now.Before(u) {
		return false
	}
	t.until[key] = now.Add(window)
	return true
}
