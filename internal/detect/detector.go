package detect

import (
	"context"
	"log/slog"
	"time"

	"partner-gateway/internal/accesslog"
	"partner-gateway/internal/alert"
	"partner-gateway/internal/options"
)

const (
	// failureLookback bounds the repeated-failure count.
	failureLookback = time.Hour
	// alertCooldown spaces alerts for one (rule, identifier) pair.
	alertCooldown = time.Hour
)

// Dispatcher delivers an alert. Satisfied by *alert.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, e alert.Event)
}

// OptionsFunc resolves the current SecurityOptions snapshot.
type OptionsFunc func() options.SecurityOptions

// Detector inspects every recorded access event for abuse patterns and
// raises alerts. It implements accesslog.Notifier and is invoked off the
// request path, so queries here never slow a caller down.
type Detector struct {
	logs       *accesslog.Service
	dispatcher Dispatcher
	throttle   Throttle
	opts       OptionsFunc
	log        *slog.Logger
	clock      func() time.Time
}

func NewDetector(logs *accesslog.Service, dispatcher Dispatcher, throttle Throttle, opts OptionsFunc, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		logs:       logs,
		dispatcher: dispatcher,
		throttle:   throttle,
		opts:       opts,
		log:        log,
		clock:      time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (d *Detector) SetClock(clock func() time.Time) { d.clock = clock }

// EventRecorded runs every detection rule against the freshly stored event.
func (d *Detector) EventRecorded(ctx context.Context, e accesslog.Event) {
	o := d.opts()
	d.checkFailedAttempts(ctx, e, o)
	d.checkUnusualLocation(ctx, e, o)
}

// checkFailedAttempts raises an alert when one source IP accumulates the
// configured number of failed events within the lookback window. The count
// includes the triggering event, which is persisted before notification.
func (d *Detector) checkFailedAttempts(ctx context.Context, e accesslog.Event, o options.SecurityOptions) {
	if !o.AlertFailedAttempts {
		return
	}
	if e.Outcome != accesslog.OutcomeFailed || e.SourceIP == "" {
		return
	}

	now := d.clock().UTC()
	count, err := d.logs.Count(ctx, accesslog.Filters{
		Outcome:       accesslog.OutcomeFailed,
		SourceIPExact: e.SourceIP,
		From:          now.Add(-failureLookback),
	})
	if err != nil {
		d.log.Error("failed-attempts count query failed", "source_ip", e.SourceIP, "err", err)
		return
	}
	if count < int64(o.FailedAttemptsThreshold) {
		return
	}
	if !d.throttle.Allow(ctx, "failed_attempts:"+e.SourceIP, alertCooldown) {
		return
	}

	d.dispatcher.Dispatch(ctx, alert.Event{
		Type:       alert.TypeFailedAttempts,
		Severity:   alert.SeverityCritical,
		TenantID:   e.TenantID,
		SourceIP:   e.SourceIP,
		Count:      int(count),
		OccurredAt: now,
	})
}

// checkUnusualLocation compares a successful event's country against the
// tenant's baseline. Tenants without enough history have no baseline and
// are exempt; the rule only fires once a usage pattern exists to deviate
// from.
func (d *Detector) checkUnusualLocation(ctx context.Context, e accesslog.Event, o options.SecurityOptions) {
	if !o.AlertUnusualLocation {
		return
	}
	if e.Outcome != accesslog.OutcomeSuccess || e.TenantID == "" || e.CountryCode == "" {
		return
	}

	usual, err := d.logs.UsualCountries(ctx, e.TenantID, int64(o.UsualCountryMinEvents))
	if err != nil {
		d.log.Error("usual-countries query failed", "tenant_id", e.TenantID, "err", err)
		return
	}
	if len(usual) == 0 {
		return
	}
	if _, ok := usual[e.CountryCode]; ok {
		return
	}
	if !d.throttle.Allow(ctx, "unusual_location:"+e.TenantID+":"+e.CountryCode, alertCooldown) {
		return
	}

	d.dispatcher.Dispatch(ctx, alert.Event{
		Type:        alert.TypeUnusualLocation,
		Severity:    alert.SeverityWarning,
		TenantID:    e.TenantID,
		SourceIP:    e.SourceIP,
		CountryCode: e.CountryCode,
		Region:      e.Region,
		City:        e.City,
		OccurredAt:  d.clock().UTC(),
	})
}

// AllowlistBlocked raises a throttled alert for a request denied by the IP
// allowlist. Called from the request middleware, which sees every blocked
// attempt; the throttle keeps a probing client from flooding the channels.
func (d *Detector) AllowlistBlocked(ctx context.Context, tenantID, sourceIP string) {
	o := d.opts()
	if !o.AlertIPWhitelistBlock {
		return
	}
	if !d.throttle.Allow(ctx, "ip_whitelist_block:"+tenantID+":"+sourceIP, alertCooldown) {
		return
	}
	d.dispatcher.Dispatch(ctx, alert.Event{
		Type:       alert.TypeIPWhitelistBlock,
		Severity:   alert.SeverityWarning,
		TenantID:   tenantID,
		SourceIP:   sourceIP,
		OccurredAt: d.clock().UTC(),
	})
}
