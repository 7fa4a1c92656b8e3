package steward

import "strings"

// matchGlob reports whether a granted pattern covers value. A pattern may
// be "*" or end in "*" (e.g. "users:*" covers "users:read").
func matchGlob(pattern, value string) bool {
	if pattern == "*" || pattern == value {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return false
}

// matchPermission reports whether a granted permission satisfies a
// required one. Both sides are compared case-insensitively since role
// grants are stored lowercased.
func matchPermission(granted, required string) bool {
	return matchGlob(granted, strings.ToLower(strings.TrimSpace(required)))
}
