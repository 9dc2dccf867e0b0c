package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Length caps for attacker-reachable log fields.
const (
	maxRouteLen  = 180
	maxMethodLen = 10
	maxActorLen  = 64
)

// logSafe strips control characters and caps the length so a crafted header
// or path cannot forge extra log lines or bloat the entry.
func logSafe(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if limit > 0 && utf8.RuneCountInString(cleaned) > limit {
		cleaned = string([]rune(cleaned)[:limit])
	}
	return cleaned
}

// SanitizeRoute makes a request path safe to log.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return logSafe(route, maxRouteLen)
}

// SanitizeMethod makes an HTTP method safe to log.
func SanitizeMethod(method string) string {
	return logSafe(method, maxMethodLen)
}

// SanitizeUserID bounds identifiers before they reach logs or metrics.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return logSafe(uid, maxActorLen)
}
