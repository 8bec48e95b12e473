package allowlist

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// Entry permits one source address, or an inclusive IPv4 range, for a
// tenant. Entries are created and deleted only by administrative action;
// traffic never creates them implicitly.
type Entry struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	// Either IPAddress, or RangeStart+RangeEnd, is set.
	IPAddress  string `json:"ip_address,omitempty"`
	RangeStart string `json:"range_start,omitempty"`
	RangeEnd   string `json:"range_end,omitempty"`

	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Matches reports whether ip falls on this entry. Exact entries compare
// literally; range entries compare numerically, bounds inclusive.
func (e Entry) Matches(ip string) bool {
	if e.IPAddress != "" {
		return e.IPAddress == ip
	}
	v, err := ipv4ToUint(ip)
	if err != nil {
		return false
	}
	lo, err := ipv4ToUint(e.RangeStart)
	if err != nil {
		return false
	}
	hi, err := ipv4ToUint(e.RangeEnd)
	if err != nil {
		return false
	}
	return v >= lo && v <= hi
}

func ipv4ToUint(s string) (uint32, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("allowlist: %q is not an IP address", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("allowlist: %q is not IPv4", s)
	}
	return binary.BigEndian.Uint32(v4), nil
}

// ValidIPv4 reports whether s is a well-formed dotted-quad IPv4 address.
func ValidIPv4(s string) bool {
	_, err := ipv4ToUint(s)
	return err == nil
}
