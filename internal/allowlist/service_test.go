package allowlist

import (
	"context"
	"errors"
	"testing"

	"partner-gateway/internal/options"
)

func modeFunc(m options.AllowlistMode) ModeFunc {
	return func() options.AllowlistMode { return m }
}

func TestIsAllowed_DisabledAlwaysAllows(t *testing.T) {
	svc := NewService(NewMemoryRepo(), modeFunc(options.AllowlistDisabled), nil)
	ok, err := svc.IsAllowed(context.Background(), "t1", "198.51.100.1")
	if err != nil || !ok {
		t.Fatalf("expected allowed, got %v %v", ok, err)
	}
}

func TestIsAllowed_MandatoryDeniesTenantWithoutEntries(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, modeFunc(options.AllowlistMandatory), nil)
	ctx := context.Background()

	// Another tenant's entry must not leak across.
	if _, err := svc.Add(ctx, "other", "198.51.100.1", "", "admin"); err != nil {
		t.Fatalf("add: %v", err)
	}

	ok, err := svc.IsAllowed(ctx, "t1", "198.51.100.1")
	if err != nil {
		t.Fatalf("isAllowed: %v", err)
	}
	if ok {
		t.Fatalf("mandatory mode must deny a tenant with zero entries")
	}
}

func TestIsAllowed_OptionalSkipsTenantsWithoutEntries(t *testing.T) {
	svc := NewService(NewMemoryRepo(), modeFunc(options.AllowlistOptional), nil)
	ok, err := svc.IsAllowed(context.Background(), "t1", "203.0.113.5")
	if err != nil || !ok {
		t.Fatalf("optional mode must allow tenants without entries, got %v %v", ok, err)
	}
}

func TestIsAllowed_ExactAndRangeMatch(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, modeFunc(options.AllowlistOptional), nil)
	ctx := context.Background()

	if _, err := svc.Add(ctx, "t1", "203.0.113.5", "office", "admin"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddRange(ctx, "t1", "10.1.0.0", "10.1.0.255", "vpn", "admin"); err != nil {
		t.Fatalf("add range: %v", err)
	}

	cases := []struct {
		ip   string
		want bool
	}{
		{"203.0.113.5", true},
		{"203.0.113.6", false},
		{"10.1.0.0", true},   // range start inclusive
		{"10.1.0.255", true}, // range end inclusive
		{"10.1.0.128", true},
		{"10.1.1.0", false},
	}
	for _, c := range cases {
		ok, err := svc.IsAllowed(ctx, "t1", c.ip)
		if err != nil {
			t.Fatalf("isAllowed(%s): %v", c.ip, err)
		}
		if ok != c.want {
			t.Fatalf("isAllowed(%s) = %v, want %v", c.ip, ok, c.want)
		}
	}
}

func TestAdd_RejectsMalformedAndDuplicate(t *testing.T) {
	svc := NewService(NewMemoryRepo(), modeFunc(options.AllowlistOptional), nil)
	ctx := context.Background()

	if _, err := svc.Add(ctx, "t1", "999.1.1.1", "", "admin"); !errors.Is(err, ErrInvalidIP) {
		t.Fatalf("expected ErrInvalidIP, got %v", err)
	}
	if _, err := svc.Add(ctx, "t1", "203.0.113.5", "", "admin"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.Add(ctx, "t1", "203.0.113.5", "", "admin"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestBulkAdd_SkipsBadLinesAndDuplicates(t *testing.T) {
	svc := NewService(NewMemoryRepo(), modeFunc(options.AllowlistOptional), nil)
	ctx := context.Background()

	if _, err := svc.Add(ctx, "t1", "203.0.113.5", "", "admin"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	lines := "203.0.113.5, head office\n203.0.113.5\n999.1.1.1"
	n, err := svc.BulkAdd(ctx, "t1", lines, "admin")
	if err != nil {
		t.Fatalf("bulkAdd must not fail on bad lines: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 imported, got %d", n)
	}

	n, err = svc.BulkAdd(ctx, "t1", "198.51.100.1, partner dc\n198.51.100.2", "admin")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 imported, got %d (%v)", n, err)
	}
}

func TestRemove(t *testing.T) {
	svc := NewService(NewMemoryRepo(), modeFunc(options.AllowlistMandatory), nil)
	ctx := context.Background()

	e, err := svc.Add(ctx, "t1", "203.0.113.5", "", "admin")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if ok, _ := svc.IsAllowed(ctx, "t1", "203.0.113.5"); !ok {
		t.Fatalf("expected allowed before removal")
	}
	if err := svc.Remove(ctx, e.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, _ := svc.IsAllowed(ctx, "t1", "203.0.113.5"); ok {
		t.Fatalf("mandatory tenant with zero entries must be denied after removal")
	}
	if err := svc.Remove(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
