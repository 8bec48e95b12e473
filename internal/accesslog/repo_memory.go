package accesslog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory event repository mirroring the Postgres
// filter semantics. Useful for tests; not intended for production use.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Insert(ctx context.Context, e Event) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.events = append(r.events, e)
	return e.ID, nil
}

func (r *MemoryRepo) List(ctx context.Context, f Filters, p Page) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]Event, 0)
	for _, e := range r.events {
		if matches(e, f) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	if p.Offset >= len(matched) {
		return []Event{}, nil
	}
	matched = matched[p.Offset:]
	if p.Limit > 0 && len(matched) > p.Limit {
		matched = matched[:p.Limit]
	}
	out := make([]Event, len(matched))
	copy(out, matched)
	return out, nil
}

func (r *MemoryRepo) Count(ctx context.Context, f Filters) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.events {
		if matches(e, f) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) CountryCounts(ctx context.Context, tenantID string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64)
	for _, e := range r.events {
		if e.TenantID == tenantID && e.Outcome == OutcomeSuccess && e.CountryCode != "" {
			out[e.CountryCode]++
		}
	}
	return out, nil
}

func (r *MemoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var deleted int64
	for _, e := range r.events {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return deleted, nil
}

func matches(e Event, f Filters) bool {
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
		return false
	}
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if f.Channel != "" && e.Channel != f.Channel {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.SourceIP != "" && !strings.Contains(e.SourceIP, f.SourceIP) {
		return false
	}
	if f.SourceIPExact != "" && e.SourceIP != f.SourceIPExact {
		return false
	}
	if f.CountryCode != "" && e.CountryCode != f.CountryCode {
		return false
	}
	return true
}
