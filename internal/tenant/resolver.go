// Package tenant resolves which organization a verified caller acts in and with which role.
package tenant

import (
	"context"
	"errors"
	"fmt"

	authzdomain "tenant-authz/internal/authz/domain"
	membershipdomain "tenant-authz/internal/membership/domain"
)

var (
	// ErrNoOrgContext is returned when neither the request nor the credential names an organization.
	ErrNoOrgContext = errors.New("no organization context")
	// ErrAccessDenied is returned when the user is unknown, inactive, or not a member of the org.
	ErrAccessDenied = errors.New("access denied")
)

// MembershipGetter returns the user's role in an org; ok is false when there is no membership row.
type MembershipGetter interface {
	GetRole(ctx context.Context, userID, orgID string) (role membershipdomain.Role, ok bool, err error)
}

// ActivityChecker reports whether a user account exists and is active.
type ActivityChecker interface {
	IsActive(ctx context.Context, userID string) (bool, error)
}

// Resolver confirms membership on every call. It holds no per-user state.
type Resolver struct {
	memberships MembershipGetter
	users       ActivityChecker
}

// NewResolver returns a Resolver over the given storage collaborators.
func NewResolver(memberships MembershipGetter, users ActivityChecker) *Resolver {
	return &Resolver{memberships: memberships, users: users}
}

// SelectOrg applies org precedence: the explicit request value wins, then the token's advisory org.
func SelectOrg(explicitOrgID, issuedOrgID string) string {
	if explicitOrgID != "" {
		return explicitOrgID
	}
	return issuedOrgID
}

// Resolve returns the membership row that authorizes identity to act in the selected org.
// Storage failures are wrapped in authzdomain.ErrStoreUnavailable and must be treated as a rejection.
func (r *Resolver) Resolve(ctx context.Context, identity authzdomain.Identity, explicitOrgID string) (*membershipdomain.Membership, error) {
	orgID := SelectOrg(explicitOrgID, identity.IssuedOrgID)
	if orgID == "" {
		return nil, ErrNoOrgContext
	}
	if identity.SubjectID == "" {
		return nil, ErrAccessDenied
	}

	active, err := r.users.IsActive(ctx, identity.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: user lookup: %v", authzdomain.ErrStoreUnavailable, err)
	}
	if !active {
		return nil, ErrAccessDenied
	}

	role, ok, err := r.memberships.GetRole(ctx, identity.SubjectID, orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: membership lookup: %v", authzdomain.ErrStoreUnavailable, err)
	}
	if !ok || role == "" {
		return nil, ErrAccessDenied
	}
	return &membershipdomain.Membership{UserID: identity.SubjectID, OrgID: orgID, Role: role}, nil
}
