package strutil

import "strings"

// NormalizeLower trims surrounding whitespace and converts to lower case.
// Use for search queries and other tokens where case is not significant.
func NormalizeLower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
