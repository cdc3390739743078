// Package strings cleans user-supplied code lists.
package strings

import "strings"

// DedupeAndTrimUpper trims and upper-cases each element, then drops blanks
// and repeats. First occurrences keep their order.
//
//	DedupeAndTrimUpper([]string{" fr", "FR", "schengen "})
//	// []string{"FR", "SCHENGEN"}
func DedupeAndTrimUpper(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
