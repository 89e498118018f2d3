package access

import "strings"

// Wildcard is the permission segment (or bare permission) that matches anything.
const Wildcard = "*"

// Matches reports whether a held permission satisfies a required permission.
// A bare "*" matches everything. Otherwise the two must have the same number
// of dot-separated segments, and every held segment must be "*" or equal to
// the corresponding required segment. There is no prefix matching: "a.*" does
// not satisfy "a.b.c".
func Matches(held, required string) bool {
	if held == Wildcard {
		return true
	}
	if held == required {
		return true
	}

	heldParts := strings.Split(held, ".")
	requiredParts := strings.Split(required, ".")
	if len(heldParts) != len(requiredParts) {
		return false
	}
	for i, part := range heldParts {
		if part != Wildcard && part != requiredParts[i] {
			return false
		}
	}
	return true
}

// RequiredPermission builds the permission string a context demands:
// "resourceType.action" when a resource type is present, else the bare action.
func RequiredPermission(resourceType, action string) string {
	if resourceType == "" {
		return action
	}
	return resourceType + "." + action
}

// RouteAllowed reports whether a route matches one of the allow-list
// patterns: exact match, or prefix match for patterns ending in "*".
func RouteAllowed(route string, patterns []string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, Wildcard) {
			if strings.HasPrefix(route, strings.TrimSuffix(p, Wildcard)) {
				return true
			}
			continue
		}
		if route == p {
			return true
		}
	}
	return false
}
