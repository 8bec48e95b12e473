package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Store performs the atomic check-and-update for one counter. The whole
// read-modify-write must be a single mutual-exclusion region; see the
// Lua script in RedisStore and the mutex in MemoryStore.
//
// Status is a read-only lockout probe; it never consumes a request.
type Store interface {
	Check(ctx context.Context, key string, p Policy, now time.Time) (Decision, error)
	Status(ctx context.Context, key string, now time.Time) (Decision, error)
}

// PolicyFunc resolves the current thresholds for a limit type. Backed by
// the hot-reloadable SecurityOptions, so threshold changes apply to the
// next check without a restart.
type PolicyFunc func(lt LimitType) Policy

// LockoutHook fires once per tripped lockout (JustLocked edge). Wired at
// startup to record the rate_limit_exceeded access event and dispatch the
// rate_limit anomaly. sourceIP is the client address of the tripping
// request; it equals identifier when the counter is keyed by address.
type LockoutHook func(ctx context.Context, lt LimitType, identifier, sourceIP string, lockedUntil time.Time)

type Service struct {
	store     Store
	policies  PolicyFunc
	onLockout LockoutHook
	log       *slog.Logger
	clock     func() time.Time
}

func NewService(store Store, policies PolicyFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, policies: policies, log: log, clock: time.Now}
}

func (s *Service) SetLockoutHook(h LockoutHook) { s.onLockout = h }

// Check decides whether one more request from identifier is admitted.
// sourceIP is carried through to the lockout hook for the audit trail.
//
// If the counter store is unreachable the request is admitted and the
// failure logged: a rate-limiter outage must not take the API down with
// it. The access log write keeps its own, stricter failure policy.
func (s *Service) Check(ctx context.Context, lt LimitType, identifier, sourceIP string) Decision {
	if identifier == "" || s.store == nil || s.policies == nil {
		s.log.Error("rate limiter misconfigured or empty identifier", "limit_type", lt)
		return Decision{Allowed: true}
	}

	p := s.policies(lt)
	if p.MaxRequests <= 0 || p.Window <= 0 {
		return Decision{Allowed: true}
	}

	d, err := s.store.Check(ctx, Key(lt, identifier), p, s.clock())
	if err != nil {
		s.log.Error("rate limit check failed; admitting", "limit_type", lt, "identifier", identifier, "err", err)
		return Decision{Allowed: true}
	}

	if d.JustLocked {
		s.log.Warn("rate limit lockout tripped",
			"limit_type", lt, "identifier", identifier, "source_ip", sourceIP, "locked_until", d.RetryAfter)
		if s.onLockout != nil {
			s.onLockout(ctx, lt, identifier, sourceIP, d.RetryAfter)
		}
	}
	return d
}

// Status reports whether identifier is under a standing lockout without
// consuming a request. Used where the counter advances on outcomes, not
// attempts, such as the failed-login limit.
func (s *Service) Status(ctx context.Context, lt LimitType, identifier string) Decision {
	if identifier == "" || s.store == nil {
		return Decision{Allowed: true}
	}
	d, err := s.store.Status(ctx, Key(lt, identifier), s.clock())
	if err != nil {
		s.log.Error("rate limit status check failed; admitting", "limit_type", lt, "identifier", identifier, "err", err)
		return Decision{Allowed: true}
	}
	return d
}
