package accesslog

import "time"

// Event is one access attempt against the gateway, interactive or API.
//
// Invariants:
// - Events are immutable after Record; only the retention job deletes them.
// - Request/response payloads are sanitized before persistence and never
//   contain values stored under sensitive keys.
// - Location fields are best-effort; a failed geo lookup leaves them empty.
type Event struct {
	// ID is store-assigned and monotonic.
	ID int64 `json:"id"`

	// TenantID is empty for anonymous/public calls.
	TenantID string `json:"tenant_id,omitempty"`
	// ActorID is the authenticated end user, distinct from the tenant.
	ActorID string `json:"actor_id,omitempty"`

	Channel   Channel `json:"channel"`
	EventType string  `json:"event_type"`

	Endpoint   string `json:"endpoint"`
	HTTPMethod string `json:"http_method"`

	Outcome    Outcome `json:"outcome"`
	StatusCode int     `json:"status_code"`

	SourceIP  string `json:"source_ip"`
	UserAgent string `json:"user_agent,omitempty"`

	CountryCode string `json:"country_code,omitempty"`
	Region      string `json:"region,omitempty"`
	City        string `json:"city,omitempty"`

	RequestPayload  map[string]any `json:"request_payload,omitempty"`
	ResponsePayload map[string]any `json:"response_payload,omitempty"`

	ErrorMessage    string  `json:"error_message,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type Channel string

const (
	ChannelAPI Channel = "api"
	ChannelWeb Channel = "web"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeBlocked Outcome = "blocked"
)

// Well-known event types. EventType is free-form; these are the ones the
// core itself emits.
const (
	EventTypeAPIRequest        = "api_request"
	EventTypeLogin             = "login"
	EventTypeRegistration      = "registration"
	EventTypeRateLimitExceeded = "rate_limit_exceeded"
	EventTypeAllowlistBlocked  = "ip_whitelist_blocked"
	EventTypeAdminAction       = "admin_action"
)

// Filters narrows Query/Count. Zero values mean "no constraint".
type Filters struct {
	From time.Time
	To   time.Time

	TenantID  string
	Outcome   Outcome
	Channel   Channel
	EventType string

	// SourceIP matches as a substring; meant for the admin log search.
	SourceIP string
	// SourceIPExact matches the whole address. The detector counts with
	// this one: "1.2.3.4" must not match events from "11.2.3.45".
	SourceIPExact string

	CountryCode string
}

// Page bounds a Query. Limit is capped server-side.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

func (p Page) normalized() Page {
	out := p
	if out.Limit <= 0 {
		out.Limit = defaultPageLimit
	}
	if out.Limit > maxPageLimit {
		out.Limit = maxPageLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}
