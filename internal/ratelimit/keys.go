package ratelimit

import (
	"fmt"
	"strings"
)

const keyPrefix = "ratelimit"

// Scope selects how widely a quota is shared by one identity.
type Scope string

const (
	// ScopeRoute gives each identity a separate quota per route.
	ScopeRoute Scope = "route"
	// ScopeGlobal gives each identity one quota across all routes.
	ScopeGlobal Scope = "global"
)

// ParseScope returns the scope named by s.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeRoute, "":
		return ScopeRoute, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	}
	return "", fmt.Errorf("unknown rate limit scope %q", s)
}

// IdentityKey returns the counter key for an authenticated subject acting in orgID.
// The org is part of the key so one tenant's traffic never drains another's quota.
func IdentityKey(scope Scope, subjectID, orgID, route string) string {
	if scope == ScopeGlobal {
		return fmt.Sprintf("%s:user:%s:%s", keyPrefix, orgID, subjectID)
	}
	return fmt.Sprintf("%s:user:%s:%s:%s", keyPrefix, orgID, subjectID, route)
}

// AnonymousKey returns the counter key for an unauthenticated caller.
func AnonymousKey(clientIP, route string) string {
	if clientIP == "" {
		clientIP = "unknown"
	}
	return fmt.Sprintf("%s:anon:%s:%s", keyPrefix, clientIP, route)
}
