package core

import "strings"

const RedactedValue = "[REDACTED]"

// Keys containing any of these fragments are hidden. Invitation tokens stay
// bearer credentials until consumed.
var sensitiveKeyFragments = []string{
	"password",
	"secret",
	"token",
	"carrier",
	"authorization",
	"cookie",
	"signature",
}

// Kept visible even though some of them contain "token".
var traceabilityKeys = map[string]struct{}{
	"token_id":           {},
	"token_status":       {},
	"token_fingerprint":  {},
	"profile_id":         {},
	"identity":           {},
	"resource_ref":       {},
	"target_resource_id": {},
	"grant_id":           {},
	"outcome":            {},
	"trace_id":           {},
	"request_id":         {},
}

// RedactSensitiveMap returns a copy of metadata safe for logs and alerts.
// Sensitive keys are replaced, and so are string values shaped like a signed
// carrier or a bearer header wherever they appear.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if sensitiveKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case map[string]string:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = item
		}
		return RedactSensitiveMap(out)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactValue(typed[i])
		}
		return out
	case []string:
		out := make([]string, len(typed))
		for i := range typed {
			out[i] = redactString(typed[i])
		}
		return out
	case string:
		return redactString(typed)
	default:
		return value
	}
}

func redactString(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(strings.ToLower(trimmed), "bearer ") || looksLikeJWT(trimmed) {
		return RedactedValue
	}
	return value
}

func looksLikeJWT(value string) bool {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if len(part) < 4 || strings.ContainsAny(part, " /\t\n") {
			return false
		}
	}
	return strings.HasPrefix(parts[0], "eyJ")
}

func sensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := traceabilityKeys[key]; ok {
		return false
	}
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

// TokenFingerprint returns a short prefix used to correlate log lines about
// one token without logging the whole credential.
func TokenFingerprint(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= 6 {
		return RedactedValue
	}
	return token[:6] + "..."
}
