package options

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory options repository for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	saved *SecurityOptions
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Load(ctx context.Context) (SecurityOptions, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		return SecurityOptions{}, false, nil
	}
	return *r.saved, true, nil
}

func (r *MemoryRepo) Save(ctx context.Context, o SecurityOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := o
	r.saved = &cp
	return nil
}
