package allowlist

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory allowlist repository for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Insert(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.entries {
		if ex.TenantID == e.TenantID && e.IPAddress != "" && ex.IPAddress == e.IPAddress {
			return ErrDuplicate
		}
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRepo) InsertBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := r.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, entryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.ID == entryID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepo) ListActive(ctx context.Context, tenantID string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0)
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListAll(ctx context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

func (r *MemoryRepo) Exists(ctx context.Context, tenantID, ip string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.IPAddress == ip {
			return true, nil
		}
	}
	return false, nil
}
