package accesslog

import "strings"

// RedactionMarker replaces values stored under sensitive keys.
const RedactionMarker = "[REDACTED]"

// sensitiveKeyParts is matched case-insensitively as a substring, so
// "access_token" and "CreditCardNumber" are caught without enumerating
// every variant.
var sensitiveKeyParts = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credit_card",
	"creditcard",
	"card_number",
	"cvv",
	"ssn",
	"tax_id",
	"identification",
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// Sanitize returns a deep copy of m with every value under a sensitive
// key replaced by RedactionMarker, including inside nested maps and
// slices. The input map is never mutated. A nil map stays nil.
func Sanitize(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = RedactionMarker
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Sanitize(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}
