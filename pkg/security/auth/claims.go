package auth

import (
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

// usernameClaims are tried in order when naming a JWT principal.
var usernameClaims = []string{"preferred_username", "username", "name", "sub"}

// usernameFromClaims picks the principal's username from token claims.
// Returns "" when no usable claim is present.
func usernameFromClaims(claims jwt.MapClaims) string {
	for _, name := range usernameClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// groupsFromClaims collects every group-like claim: the groups claim,
// realm roles, and the client roles of every resource_access entry.
// The union is deduplicated preserving first-seen order; client names
// are visited sorted so the result is deterministic.
func groupsFromClaims(claims jwt.MapClaims) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(values []string) {
		for _, v := range values {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}

	add(stringSlice(claims["groups"]))

	if realm, ok := claims["realm_access"].(map[string]any); ok {
		add(stringSlice(realm["roles"]))
	}

	if resources, ok := claims["resource_access"].(map[string]any); ok {
		names := make([]string, 0, len(resources))
		for name := range resources {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if client, ok := resources[name].(map[string]any); ok {
				add(stringSlice(client["roles"]))
			}
		}
	}

	return out
}

// stringSlice coerces a decoded JSON array into a string slice,
// skipping non-string members.
func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
