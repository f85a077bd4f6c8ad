package repository

import (
	"context"

	"tenant-authz/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// IsActive reports whether the user exists and is active. A missing user is (false, nil).
	IsActive(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, u *domain.User) error
}
