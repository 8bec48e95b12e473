package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"partner-gateway/internal/options"
)

// Purger deletes access events older than a cutoff. Satisfied by the
// accesslog repositories.
type Purger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// OptionsFunc resolves the current SecurityOptions snapshot.
type OptionsFunc func() options.SecurityOptions

// Service enforces the access-log retention window. Deletion through
// here is the only sanctioned way to remove access events.
type Service struct {
	purger Purger
	log    *slog.Logger
	clock  func() time.Time
}

func NewService(purger Purger, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{purger: purger, log: log, clock: time.Now}
}

// SetClock replaces the time source. Test hook.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// Cleanup deletes events older than retentionDays and reports how many
// rows went away. An event exactly at the cutoff is retained.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("retention: days must be positive")
	}
	cutoff := s.clock().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := s.purger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.log.Info("retention cleanup done", "retention_days", retentionDays, "cutoff", cutoff, "deleted", deleted)
	return deleted, nil
}

const tickInterval = 24 * time.Hour

// Scheduler runs Cleanup once a day with whatever retention settings are
// current at tick time. Run blocks until ctx is done.
type Scheduler struct {
	svc  *Service
	opts OptionsFunc
	log  *slog.Logger
}

func NewScheduler(svc *Service, opts OptionsFunc, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{svc: svc, opts: opts, log: log}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.tick(ctx)
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	o := s.opts()
	if !o.RetentionEnabled {
		return
	}
	if _, err := s.svc.Cleanup(ctx, o.RetentionDays); err != nil {
		s.log.Error("scheduled retention cleanup failed", "err", err)
	}
}
