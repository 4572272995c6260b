package util

import "strings"

// SafeTruncate safely truncates a string to maxLen characters without panicking.
// If maxLen is negative, it's treated as 0 and returns an empty string.
//
// Example:
//
//	SafeTruncate("very-long-token-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                  // Returns: "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// SplitScopes splits each of raw on delimiter and drops empty entries and
// duplicates. Order of first appearance is kept. An empty delimiter means " ".
//
// Example:
//
//	SplitScopes(" ", "read  write", "read") // Returns: ["read", "write"]
func SplitScopes(delimiter string, raw ...string) []string {
	if delimiter == "" {
		delimiter = " "
	}
	var out []string
	seen := make(map[string]struct{})
	for _, r := range raw {
		for _, s := range strings.Split(r, delimiter) {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Difference returns the entries of a that are not in b, in order
func Difference(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
