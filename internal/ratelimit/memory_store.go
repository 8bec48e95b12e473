package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count       int
	windowStart time.Time
	windowEnd   time.Time
	lockedUntil time.Time
}

// MemoryStore is a process-local counter store with the same semantics as
// RedisStore. The mutex spans the whole check-and-update, so concurrent
// checks on one identifier cannot race past the threshold. Suitable for
// tests and single-process deployments.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	clock    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*counter), clock: time.Now}
}

// SetClock replaces the time source. Test hook.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Check(ctx context.Context, key string, p Policy, _ time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()

	c, ok := s.counters[key]
	if !ok {
		s.counters[key] = &counter{count: 1, windowStart: now, windowEnd: now.Add(p.Window)}
		return Decision{Allowed: true, Remaining: p.MaxRequests - 1}, nil
	}

	if c.lockedUntil.After(now) {
		return Decision{Allowed: false, RetryAfter: c.lockedUntil}, nil
	}

	if !c.lockedUntil.IsZero() || !now.Before(c.windowEnd) {
		// Expired lockout or elapsed window: fresh window, count resets to 1.
		// An expired lockout must reset even if the old window is still
		// open, otherwise the very next request re-trips the threshold.
		c.count = 1
		c.windowStart = now
		c.windowEnd = now.Add(p.Window)
		c.lockedUntil = time.Time{}
		return Decision{Allowed: true, Remaining: p.MaxRequests - 1}, nil
	}

	c.count++
	if c.count > p.MaxRequests {
		c.lockedUntil = now.Add(p.Lockout)
		return Decision{Allowed: false, RetryAfter: c.lockedUntil, JustLocked: true}, nil
	}
	return Decision{Allowed: true, Remaining: p.MaxRequests - c.count}, nil
}

func (s *MemoryStore) Status(ctx context.Context, key string, _ time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	c, ok := s.counters[key]
	if !ok || !c.lockedUntil.After(now) {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: c.lockedUntil}, nil
}
