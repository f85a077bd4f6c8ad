package repository

import (
	"context"

	"tenant-authz/internal/audit/domain"
)

// Repository defines persistence for audit logs. Reads are always scoped to one org.
type Repository interface {
	ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
