package alert

import "time"

// Type classifies an anomaly. The set is fixed; alert delivery is not a
// general-purpose event bus.
type Type string

const (
	TypeFailedAttempts   Type = "failed_attempts"
	TypeRateLimit        Type = "rate_limit"
	TypeUnusualLocation  Type = "unusual_location"
	TypeIPWhitelistBlock Type = "ip_whitelist_block"
	TypeNewTenant        Type = "new_tenant"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is the ephemeral payload handed from the detector (or middleware)
// to the dispatcher. It is never persisted; the underlying access events
// are the durable record.
type Event struct {
	Type     Type
	Severity Severity

	TenantID    string
	SourceIP    string
	CountryCode string
	Region      string
	City        string

	Count int

	Extra map[string]string

	OccurredAt time.Time
}
