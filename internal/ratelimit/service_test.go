package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testPolicies(lt LimitType) Policy {
	switch lt {
	case LimitLogin:
		return Policy{MaxRequests: 10, Window: time.Hour, Lockout: 30 * time.Minute}
	default:
		return Policy{MaxRequests: 60, Window: time.Minute, Lockout: 30 * time.Minute}
	}
}

func newTestService(store Store) *Service {
	return NewService(store, testPolicies, nil)
}

func TestCheck_AllowsUpToThresholdThenDenies(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		if d := svc.Check(ctx, LimitAPI, "tenant-1", "203.0.113.1"); !d.Allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
	}
	d := svc.Check(ctx, LimitAPI, "tenant-1", "203.0.113.1")
	if d.Allowed {
		t.Fatalf("request 61 should be denied")
	}
	if !d.JustLocked {
		t.Fatalf("expected JustLocked on the tripping request")
	}
	if d.RetryAfter.IsZero() {
		t.Fatalf("expected RetryAfter on deny")
	}

	// Standing lockout: denied again, but not JustLocked.
	d2 := svc.Check(ctx, LimitAPI, "tenant-1", "203.0.113.1")
	if d2.Allowed || d2.JustLocked {
		t.Fatalf("expected plain deny under standing lockout, got %+v", d2)
	}
}

func TestCheck_ConcurrentNeverExceedsThreshold(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	const n = 200
	var allowed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if d := svc.Check(ctx, LimitAPI, "tenant-x", "203.0.113.1"); d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 60 {
		t.Fatalf("expected exactly 60 admitted, got %d", got)
	}
}

func TestCheck_LockoutExpiryResetsWindow(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	store.SetClock(func() time.Time { return now })

	svc := newTestService(store)
	svc.clock = func() time.Time { return now }
	ctx := context.Background()

	// Trip the login lockout at time T.
	for i := 0; i < 10; i++ {
		if d := svc.Check(ctx, LimitLogin, "carol", "203.0.113.1"); !d.Allowed {
			t.Fatalf("attempt %d unexpectedly denied", i+1)
		}
	}
	if d := svc.Check(ctx, LimitLogin, "carol", "203.0.113.1"); d.Allowed || !d.JustLocked {
		t.Fatalf("expected lockout, got %+v", d)
	}

	// T+29m: still locked.
	now = now.Add(29 * time.Minute)
	if d := svc.Check(ctx, LimitLogin, "carol", "203.0.113.1"); d.Allowed {
		t.Fatalf("expected deny at T+29m")
	}

	// T+31m: unlocked, fresh window with count 1.
	now = now.Add(2 * time.Minute)
	d := svc.Check(ctx, LimitLogin, "carol", "203.0.113.1")
	if !d.Allowed {
		t.Fatalf("expected allow at T+31m, got %+v", d)
	}
	if d.Remaining != 9 {
		t.Fatalf("expected fresh window (remaining 9), got %+v", d)
	}
}

func TestCheck_WindowExpiryResetsCount(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	store.SetClock(func() time.Time { return now })
	svc := newTestService(store)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		svc.Check(ctx, LimitAPI, "tenant-2", "203.0.113.1")
	}
	now = now.Add(61 * time.Second)
	d := svc.Check(ctx, LimitAPI, "tenant-2", "203.0.113.1")
	if !d.Allowed || d.Remaining != 59 {
		t.Fatalf("expected reset window, got %+v", d)
	}
}

func TestCheck_IdentifiersAreIsolatedByType(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		svc.Check(ctx, LimitAPI, "10.0.0.1", "10.0.0.1")
	}
	if d := svc.Check(ctx, LimitAPI, "10.0.0.1", "10.0.0.1"); d.Allowed {
		t.Fatalf("api counter should be exhausted")
	}
	// Same identifier, different type: separate counter.
	if d := svc.Check(ctx, LimitLogin, "10.0.0.1", "10.0.0.1"); !d.Allowed {
		t.Fatalf("login counter should be fresh")
	}
}

func TestCheck_LockoutHookFiresOnceOnTrip(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	var fired atomic.Int64
	var gotIP string
	svc.SetLockoutHook(func(ctx context.Context, lt LimitType, id, sourceIP string, until time.Time) {
		fired.Add(1)
		gotIP = sourceIP
	})
	ctx := context.Background()

	for i := 0; i < 65; i++ {
		svc.Check(ctx, LimitAPI, "tenant-3", "203.0.113.1")
	}
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected hook to fire exactly once, got %d", got)
	}
	if gotIP != "203.0.113.1" {
		t.Fatalf("hook source ip = %q", gotIP)
	}
}

func TestStatus_ReportsLockoutWithoutConsuming(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	store.SetClock(func() time.Time { return now })
	svc := newTestService(store)
	svc.clock = func() time.Time { return now }
	ctx := context.Background()

	// Fresh identifier: allowed, and the probe creates no counter.
	if d := svc.Status(ctx, LimitLogin, "dave"); !d.Allowed {
		t.Fatalf("expected allow for fresh identifier, got %+v", d)
	}
	for i := 0; i < 10; i++ {
		if d := svc.Check(ctx, LimitLogin, "dave", "203.0.113.1"); !d.Allowed {
			t.Fatalf("attempt %d unexpectedly denied; status probe must not consume", i+1)
		}
	}
	if d := svc.Check(ctx, LimitLogin, "dave", "203.0.113.1"); d.Allowed {
		t.Fatalf("expected trip on attempt 11")
	}

	d := svc.Status(ctx, LimitLogin, "dave")
	if d.Allowed || d.RetryAfter.IsZero() {
		t.Fatalf("expected standing lockout from status, got %+v", d)
	}

	// Past the lockout the probe clears.
	now = now.Add(31 * time.Minute)
	if d := svc.Status(ctx, LimitLogin, "dave"); !d.Allowed {
		t.Fatalf("expected allow after lockout expiry, got %+v", d)
	}
}

type erroringStore struct{}

func (erroringStore) Check(ctx context.Context, key string, p Policy, now time.Time) (Decision, error) {
	return Decision{}, context.DeadlineExceeded
}

func (erroringStore) Status(ctx context.Context, key string, now time.Time) (Decision, error) {
	return Decision{}, context.DeadlineExceeded
}

func TestCheck_StoreFailureAdmits(t *testing.T) {
	svc := newTestService(erroringStore{})
	if d := svc.Check(context.Background(), LimitAPI, "tenant-4", "203.0.113.1"); !d.Allowed {
		t.Fatalf("store failure must admit, got %+v", d)
	}
}
