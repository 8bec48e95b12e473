package alert

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPhone = errors.New("alert: phone number cannot be normalized")

// NormalizePhone converts a phone number to canonical international form:
// a leading + followed by 8 to 15 digits. Spaces, dashes, dots and
// parentheses are stripped; a 00 prefix becomes +. Numbers that cannot be
// brought into that shape are rejected rather than guessed at.
func NormalizePhone(s string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separators
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, s)
		}
	}

	n := b.String()
	if strings.HasPrefix(n, "00") {
		n = "+" + n[2:]
	}
	if !strings.HasPrefix(n, "+") {
		return "", fmt.Errorf("%w: %q lacks a country prefix", ErrInvalidPhone, s)
	}
	digits := n[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, s)
	}
	return n, nil
}
