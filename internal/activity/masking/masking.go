package masking

import "strings"

const maskToken = "****"

// sensitiveKeys hold payment references and bank data that must not be
// stored verbatim in activity logs.
var sensitiveKeys = map[string]bool{
	"payment_reference":   true,
	"reference":           true,
	"bank_account_number": true,
}

// MaskSecret redacts a value while keeping a short suffix for reconciliation.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// Metadata returns a copy of input with sensitive string values masked.
// Nested maps are walked; empty keys are dropped.
func Metadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = maskValue(key, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if sensitiveKeys[strings.ToLower(key)] {
			return MaskSecret(cast)
		}
		return cast
	case map[string]any:
		return Metadata(cast)
	default:
		return value
	}
}
