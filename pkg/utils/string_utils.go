package utils

import "strings"

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "requestID"

// NormalizeKey lowercases and trims a catalog key (room names, terminal types) for comparisons.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
