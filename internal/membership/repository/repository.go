package repository

import (
	"context"

	"tenant-authz/internal/membership/domain"
)

// Repository defines persistence for memberships. Every lookup is keyed by both user and org;
// there is deliberately no method that reads memberships without an org filter.
type Repository interface {
	// GetMembershipByUserAndOrg returns the membership, or nil if the user is not a member of the org.
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	// GetRole returns the user's role in the org and false when there is no membership row.
	GetRole(ctx context.Context, userID, orgID string) (domain.Role, bool, error)
	CreateMembership(ctx context.Context, m *domain.Membership) error
}
