package accesslog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"partner-gateway/internal/geo"
)

// Repository is the persistence contract for access events.
//
// Insert MUST be append-only; the only deletion path is DeleteOlderThan,
// reserved for the retention job.
type Repository interface {
	Insert(ctx context.Context, e Event) (int64, error)
	List(ctx context.Context, f Filters, p Page) ([]Event, error)
	Count(ctx context.Context, f Filters) (int64, error)

	// CountryCounts returns, per country code, how many successful events
	// the tenant has. Used by the detector to build a location baseline.
	CountryCounts(ctx context.Context, tenantID string) (map[string]int64, error)

	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Enricher annotates a source IP with a coarse location. Best-effort.
type Enricher interface {
	Lookup(ctx context.Context, ip string) (geo.Location, error)
}

// Notifier observes every recorded event. Implemented by the suspicious
// activity detector. Called asynchronously; a slow or panicking notifier
// must never delay or fail the write.
type Notifier interface {
	EventRecorded(ctx context.Context, e Event)
}

var (
	ErrInvalidEvent = errors.New("accesslog: invalid event")
	// ErrStoreUnavailable marks the one failure that must surface to the
	// caller: losing audit data silently is unacceptable.
	ErrStoreUnavailable = errors.New("accesslog: store unavailable")
)

const (
	enrichTimeout = 3 * time.Second
	notifyTimeout = 5 * time.Second
)

// Service is the unified access log. One instance is constructed at
// startup and injected everywhere; there is no ambient global.
type Service struct {
	repo     Repository
	enricher Enricher
	notifier Notifier
	log      *slog.Logger
	clock    func() time.Time
}

func NewService(repo Repository, enricher Enricher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, enricher: enricher, log: log, clock: time.Now}
}

// SetNotifier attaches the detector. Separate from the constructor because
// the detector itself reads from this service.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// Record sanitizes, enriches and persists one access event, then triggers
// the notifier off the request path. Returns the store-assigned id.
//
// Enrichment failure leaves the location fields empty; a store failure is
// returned wrapped in ErrStoreUnavailable.
func (s *Service) Record(ctx context.Context, e Event) (int64, error) {
	if s.repo == nil {
		return 0, errors.New("accesslog: repository not configured")
	}
	if e.EventType == "" || e.Outcome == "" {
		return 0, ErrInvalidEvent
	}
	if e.Channel == "" {
		e.Channel = ChannelAPI
	}

	e.RequestPayload = Sanitize(e.RequestPayload)
	e.ResponsePayload = Sanitize(e.ResponsePayload)

	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}

	if e.CountryCode == "" && e.SourceIP != "" && s.enricher != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, enrichTimeout)
		loc, err := s.enricher.Lookup(lookupCtx, e.SourceIP)
		cancel()
		if err != nil {
			s.log.Debug("geo enrichment failed", "ip", e.SourceIP, "err", err)
		} else {
			e.CountryCode = loc.CountryCode
			e.Region = loc.Region
			e.City = loc.City
		}
	}

	id, err := s.repo.Insert(ctx, e)
	if err != nil {
		// The write is mandatory; escalate to the process log before
		// surfacing so the event is not lost without trace.
		s.log.Error("access event write failed",
			"event_type", e.EventType, "tenant_id", e.TenantID, "source_ip", e.SourceIP, "err", err)
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.ID = id

	if s.notifier != nil {
		go s.notify(e)
	}
	return id, nil
}

func (s *Service) notify(e Event) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("detector panicked", "event_id", e.ID, "panic", p)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	s.notifier.EventRecorded(ctx, e)
}

// Query returns events matching f, newest first.
func (s *Service) Query(ctx context.Context, f Filters, p Page) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("accesslog: repository not configured")
	}
	return s.repo.List(ctx, f, p.normalized())
}

func (s *Service) Count(ctx context.Context, f Filters) (int64, error) {
	if s.repo == nil {
		return 0, errors.New("accesslog: repository not configured")
	}
	return s.repo.Count(ctx, f)
}

// UsualCountries returns the countries where the tenant has more than
// minEvents successful events.
func (s *Service) UsualCountries(ctx context.Context, tenantID string, minEvents int64) (map[string]struct{}, error) {
	if tenantID == "" {
		return nil, ErrInvalidEvent
	}
	counts, err := s.repo.CountryCounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for cc, n := range counts {
		if cc != "" && n > minEvents {
			out[cc] = struct{}{}
		}
	}
	return out, nil
}
