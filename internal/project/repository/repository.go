package repository

import (
	"context"

	"tenant-authz/internal/project/domain"
)

// Repository defines org-scoped persistence for projects. Every method takes the org the caller
// was resolved into; an empty orgID is refused with db.ErrNoOrgScope.
type Repository interface {
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Project, error)
	Create(ctx context.Context, p *domain.Project) error
}
