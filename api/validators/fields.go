package validators

import "strings"

// NormalizeEmail is the canonical form used for ownership checks and filters.
func NormalizeEmail(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
