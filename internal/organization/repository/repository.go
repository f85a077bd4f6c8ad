package repository

import (
	"context"

	"tenant-authz/internal/organization/domain"
)

// Repository defines persistence for organizations.
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Org, error)
	CreateOrganization(ctx context.Context, o *domain.Org) error
}
