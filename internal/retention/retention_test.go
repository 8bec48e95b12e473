package retention

import (
	"context"
	"testing"
	"time"

	"partner-gateway/internal/accesslog"
)

func seed(t *testing.T, repo *accesslog.MemoryRepo, at time.Time) {
	t.Helper()
	_, err := repo.Insert(context.Background(), accesslog.Event{
		TenantID:  "t1",
		Channel:   accesslog.ChannelAPI,
		EventType: accesslog.EventTypeAPIRequest,
		Outcome:   accesslog.OutcomeSuccess,
		SourceIP:  "198.51.100.10",
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestCleanup_DeletesOnlyBeyondWindow(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := accesslog.NewMemoryRepo()
	svc := NewService(repo, nil)
	svc.SetClock(func() time.Time { return now })

	seed(t, repo, now.AddDate(0, 0, -91))
	seed(t, repo, now.AddDate(0, 0, -89))
	seed(t, repo, now.AddDate(0, 0, -1))

	deleted, err := svc.Cleanup(context.Background(), 90)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	remaining, err := repo.Count(context.Background(), accesslog.Filters{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("remaining = %d, want 2", remaining)
	}
}

func TestCleanup_RejectsNonPositiveWindow(t *testing.T) {
	svc := NewService(accesslog.NewMemoryRepo(), nil)
	if _, err := svc.Cleanup(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero retention days")
	}
}
