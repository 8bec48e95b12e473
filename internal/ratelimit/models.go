package ratelimit

import (
	"time"
)

// LimitType scopes counters. Identifiers only collide within a type.
type LimitType string

const (
	LimitAPI          LimitType = "api"
	LimitLogin        LimitType = "login"
	LimitRegistration LimitType = "registration"
)

// Policy is the threshold set applied to one limit type. All values come
// from SecurityOptions; nothing here is a constant.
type Policy struct {
	MaxRequests int
	Window      time.Duration
	Lockout     time.Duration
}

// Decision is the outcome of one check. RateLimited is a value, not an
// error: a denied request is a normal, expected result.
type Decision struct {
	Allowed bool

	// RetryAfter is when a denied identifier unlocks.
	RetryAfter time.Time

	// Remaining is how many requests are left in the current window.
	Remaining int

	// JustLocked is true on exactly the check that tripped the lockout.
	// Hooks fire on this edge so an abusive client retrying against a
	// standing lockout produces one event, not thousands.
	JustLocked bool
}

// Key builds the counter key for a (type, identifier) pair.
func Key(lt LimitType, identifier string) string {
	return string(lt) + ":" + identifier
}
