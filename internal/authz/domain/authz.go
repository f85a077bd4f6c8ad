// Package domain holds the request-scoped authorization types shared by the verifier,
// the tenant resolver, the quota guard and the pipeline that chains them.
package domain

import (
	membershipdomain "tenant-authz/internal/membership/domain"
)

// Identity is derived from a verified credential and lives for one request.
// IssuedOrgID and IssuedRole describe what was true when the token was minted; they are
// advisory only and must never be used for authorization decisions.
type Identity struct {
	SubjectID   string
	Email       string
	IssuedRole  string
	IssuedOrgID string
}

// AuthorizationContext is attached to a request once the pipeline authorizes it.
// Fields are unexported so downstream code cannot rebind the org or role after the fact.
type AuthorizationContext struct {
	identity  Identity
	orgID     string
	role      membershipdomain.Role
	anonymous bool
}

// NewAuthorizationContext binds identity to the membership confirmed for this request.
// The role is always taken from the membership row, never from the identity's claims.
func NewAuthorizationContext(identity Identity, m *membershipdomain.Membership) AuthorizationContext {
	return AuthorizationContext{
		identity: identity,
		orgID:    m.OrgID,
		role:     m.Role,
	}
}

// AnonymousContext is the authorization result for routes that permit unauthenticated access.
// It carries no identity and no org.
func AnonymousContext() AuthorizationContext {
	return AuthorizationContext{anonymous: true}
}

func (a AuthorizationContext) Identity() Identity          { return a.identity }
func (a AuthorizationContext) SubjectID() string           { return a.identity.SubjectID }
func (a AuthorizationContext) OrgID() string               { return a.orgID }
func (a AuthorizationContext) Role() membershipdomain.Role { return a.role }
func (a AuthorizationContext) Anonymous() bool             { return a.anonymous }

// Principal is the outbound shape handed to business logic.
type Principal struct {
	SubjectID string `json:"subjectId"`
	OrgID     string `json:"orgId"`
	Role      string `json:"role"`
}

// Principal returns the {subjectId, orgId, role} view of the context.
func (a AuthorizationContext) Principal() Principal {
	return Principal{SubjectID: a.identity.SubjectID, OrgID: a.orgID, Role: string(a.role)}
}
