package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"partner-gateway/internal/options"
)

// smsTypes is the fixed subset of alert types delivered over SMS. SMS is
// expensive and noisy; only conditions worth waking someone for qualify.
var smsTypes = map[Type]struct{}{
	TypeFailedAttempts:   {},
	TypeRateLimit:        {},
	TypeUnusualLocation:  {},
	TypeIPWhitelistBlock: {},
}

// OptionsFunc resolves the current SecurityOptions snapshot.
type OptionsFunc func() options.SecurityOptions

// Dispatcher fans a classified anomaly out to the configured channels.
// Delivery failures are logged and swallowed: alerting must never break
// the request path it is reporting on.
type Dispatcher struct {
	email EmailSender
	sms   SMSSender // nil when provider credentials are absent
	opts  OptionsFunc

	// adminEmail is the fallback recipient when no alert address is set.
	adminEmail string

	log *slog.Logger
}

func NewDispatcher(email EmailSender, sms SMSSender, opts OptionsFunc, adminEmail string, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{email: email, sms: sms, opts: opts, adminEmail: adminEmail, log: log}
}

// Dispatch delivers e to every enabled channel. Always returns; never errors.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	o := d.opts()
	if !typeEnabled(e.Type, o) {
		return
	}

	d.sendEmail(ctx, e, o)
	d.sendSMS(ctx, e, o)
}

func (d *Dispatcher) sendEmail(ctx context.Context, e Event, o options.SecurityOptions) {
	if d.email == nil || !o.EmailEnabled {
		return
	}
	to := o.AlertEmail
	if to == "" {
		to = d.adminEmail
	}
	if to == "" {
		d.log.Warn("alert email skipped: no recipient configured", "type", e.Type)
		return
	}

	subject, body := renderEmail(e)
	if err := d.email.Send(ctx, to, subject, body, "text/plain; charset=utf-8"); err != nil {
		d.log.Error("alert email delivery failed", "type", e.Type, "to", to, "err", err)
	}
}

func (d *Dispatcher) sendSMS(ctx context.Context, e Event, o options.SecurityOptions) {
	if d.sms == nil || !o.SMSEnabled {
		return
	}
	if _, ok := smsTypes[e.Type]; !ok {
		return
	}

	body := renderSMS(e)
	for _, raw := range o.SMSNumbers {
		to, err := NormalizePhone(raw)
		if err != nil {
			d.log.Warn("alert sms skipped: bad recipient", "number", raw, "err", err)
			continue
		}
		if err := d.sms.Send(ctx, to, body); err != nil {
			d.log.Error("alert sms delivery failed", "type", e.Type, "to", to, "err", err)
		}
	}
}

func typeEnabled(t Type, o options.SecurityOptions) bool {
	switch t {
	case TypeFailedAttempts:
		return o.AlertFailedAttempts
	case TypeRateLimit:
		return o.AlertRateLimit
	case TypeUnusualLocation:
		return o.AlertUnusualLocation
	case TypeIPWhitelistBlock:
		return o.AlertIPWhitelistBlock
	case TypeNewTenant:
		return o.AlertNewTenant
	default:
		return false
	}
}

func renderEmail(e Event) (subject, body string) {
	subject = "[Security] " + headline(e)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", headline(e))
	fmt.Fprintf(&b, "Severity: %s\n", e.Severity)
	if e.TenantID != "" {
		fmt.Fprintf(&b, "Tenant: %s\n", e.TenantID)
	}
	if e.SourceIP != "" {
		fmt.Fprintf(&b, "Source IP: %s\n", e.SourceIP)
	}
	if e.CountryCode != "" {
		loc := e.CountryCode
		if e.City != "" {
			loc = e.City + ", " + loc
		}
		fmt.Fprintf(&b, "Location: %s\n", loc)
	}
	if e.Count > 0 {
		fmt.Fprintf(&b, "Occurrences: %d\n", e.Count)
	}
	for k, v := range e.Extra {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	if !e.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "At: %s\n", e.OccurredAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return subject, b.String()
}

func renderSMS(e Event) string {
	parts := []string{headline(e)}
	if e.TenantID != "" {
		parts = append(parts, "tenant "+e.TenantID)
	}
	if e.SourceIP != "" {
		parts = append(parts, "ip "+e.SourceIP)
	}
	return strings.Join(parts, " | ")
}

func headline(e Event) string {
	switch e.Type {
	case TypeFailedAttempts:
		return fmt.Sprintf("%d failed attempts from %s", e.Count, e.SourceIP)
	case TypeRateLimit:
		return fmt.Sprintf("Rate limit lockout for %s", firstNonEmpty(e.TenantID, e.SourceIP))
	case TypeUnusualLocation:
		return fmt.Sprintf("Access from unusual country %s", e.CountryCode)
	case TypeIPWhitelistBlock:
		return fmt.Sprintf("Blocked non-allowlisted IP %s", e.SourceIP)
	case TypeNewTenant:
		return "New partner registration"
	default:
		return string(e.Type)
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
