package options

import (
	"context"
	"errors"
	"sync"
)

// Repository is the persistence contract for the single options row.
type Repository interface {
	Load(ctx context.Context) (SecurityOptions, bool, error)
	Save(ctx context.Context, o SecurityOptions) error
}

// Store serves SecurityOptions to the hot path. Get is a cheap snapshot
// read; Save persists first and only then swaps the cache, so readers
// never observe options that failed to persist.
type Store struct {
	repo Repository

	mu      sync.RWMutex
	current SecurityOptions
}

func NewStore(repo Repository, defaults SecurityOptions) *Store {
	return &Store{repo: repo, current: defaults}
}

// Reload pulls the persisted row into the cache. Absence of a row keeps
// the defaults in place.
func (s *Store) Reload(ctx context.Context) error {
	if s.repo == nil {
		return errors.New("options: repository not configured")
	}
	o, found, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = o
	s.mu.Unlock()
	return nil
}

// Get returns the current options snapshot.
func (s *Store) Get() SecurityOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save validates, persists and applies new options.
func (s *Store) Save(ctx context.Context, o SecurityOptions) error {
	if s.repo == nil {
		return errors.New("options: repository not configured")
	}
	if err := o.Validate(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, o); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = o
	s.mu.Unlock()
	return nil
}
