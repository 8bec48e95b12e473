package options

import (
	"errors"
	"fmt"
)

// AllowlistMode controls how strictly the per-tenant IP allowlist is applied.
type AllowlistMode string

const (
	// AllowlistDisabled turns the allowlist off entirely.
	AllowlistDisabled AllowlistMode = "disabled"
	// AllowlistOptional enforces only for tenants that added entries.
	AllowlistOptional AllowlistMode = "optional"
	// AllowlistMandatory denies tenants with no active entries.
	AllowlistMandatory AllowlistMode = "mandatory"
)

// SecurityOptions is the runtime-tunable configuration of the access-control
// core. It is persisted as a single row and cached per process; Save swaps
// the cache so changes apply without a restart.
type SecurityOptions struct {
	// Per-rule alert toggles.
	AlertFailedAttempts   bool `json:"alert_failed_attempts"`
	AlertUnusualLocation  bool `json:"alert_unusual_location"`
	AlertRateLimit        bool `json:"alert_rate_limit"`
	AlertIPWhitelistBlock bool `json:"alert_ip_whitelist_block"`
	AlertNewTenant        bool `json:"alert_new_tenant"`

	// Recipients and channel switches. Channel credentials stay in env
	// config; only routing choices live here.
	EmailEnabled bool     `json:"email_enabled"`
	AlertEmail   string   `json:"alert_email,omitempty"`
	SMSEnabled   bool     `json:"sms_enabled"`
	SMSNumbers   []string `json:"sms_numbers,omitempty"`

	// Rate-limit thresholds. Registration shares the api thresholds,
	// keyed by source IP.
	APIMaxRequests      int `json:"api_max_requests"`
	APIWindowSeconds    int `json:"api_window_seconds"`
	APILockoutMinutes   int `json:"api_lockout_minutes"`
	LoginMaxAttempts    int `json:"login_max_attempts"`
	LoginWindowSeconds  int `json:"login_window_seconds"`
	LoginLockoutMinutes int `json:"login_lockout_minutes"`

	// Detector thresholds.
	FailedAttemptsThreshold int `json:"failed_attempts_threshold"`
	UsualCountryMinEvents   int `json:"usual_country_min_events"`

	RetentionEnabled bool `json:"retention_enabled"`
	RetentionDays    int  `json:"retention_days"`

	AllowlistMode AllowlistMode `json:"allowlist_mode"`
}

// Defaults returns the options used until an operator saves their own.
func Defaults() SecurityOptions {
	return SecurityOptions{
		AlertFailedAttempts:   true,
		AlertUnusualLocation:  true,
		AlertRateLimit:        true,
		AlertIPWhitelistBlock: true,
		AlertNewTenant:        true,

		EmailEnabled: true,

		APIMaxRequests:      60,
		APIWindowSeconds:    60,
		APILockoutMinutes:   30,
		LoginMaxAttempts:    10,
		LoginWindowSeconds:  3600,
		LoginLockoutMinutes: 30,

		FailedAttemptsThreshold: 5,
		UsualCountryMinEvents:   10,

		RetentionEnabled: true,
		RetentionDays:    90,

		AllowlistMode: AllowlistOptional,
	}
}

func (o SecurityOptions) Validate() error {
	var errs []error
	if o.APIMaxRequests <= 0 || o.APIWindowSeconds <= 0 || o.APILockoutMinutes <= 0 {
		errs = append(errs, errors.New("api rate-limit thresholds must be positive"))
	}
	if o.LoginMaxAttempts <= 0 || o.LoginWindowSeconds <= 0 || o.LoginLockoutMinutes <= 0 {
		errs = append(errs, errors.New("login rate-limit thresholds must be positive"))
	}
	if o.FailedAttemptsThreshold <= 0 {
		errs = append(errs, errors.New("failed_attempts_threshold must be positive"))
	}
	if o.RetentionEnabled && o.RetentionDays <= 0 {
		errs = append(errs, errors.New("retention_days must be positive when retention is enabled"))
	}
	switch o.AllowlistMode {
	case AllowlistDisabled, AllowlistOptional, AllowlistMandatory:
	default:
		errs = append(errs, fmt.Errorf("allowlist_mode must be disabled, optional or mandatory, got %q", o.AllowlistMode))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
