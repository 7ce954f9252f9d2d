// Package masking redacts applicant contact details before they reach the
// audit trail.
package masking

import "strings"

const maskToken = "****"

var contactKeys = map[string]struct{}{
	"email":         {},
	"contact_email": {},
	"contact_phone": {},
	"phone":         {},
}

// MaskContactValue masks values stored under contact-bearing keys and
// recurses into nested maps. Other values pass through untouched.
func MaskContactValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if _, ok := contactKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
			return MaskContact(cast)
		}
		return cast
	case map[string]any:
		masked := make(map[string]any, len(cast))
		for k, v := range cast {
			masked[k] = MaskContactValue(k, v)
		}
		return masked
	default:
		return value
	}
}

// MaskContact redacts an email or phone number while keeping enough of a
// suffix to correlate entries.
func MaskContact(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if at := strings.Index(trimmed, "@"); at > 0 {
		local := trimmed[:at]
		keep := 1
		if len(local) > 2 {
			keep = 2
		}
		return local[:keep] + maskToken + trimmed[at:]
	}

	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}
