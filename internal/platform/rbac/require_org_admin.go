package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authzdomain "tenant-authz/internal/authz/domain"
	membershipdomain "tenant-authz/internal/membership/domain"
)

// RequireOrgAdmin ensures the caller has role owner or admin in the context org.
// Returns the principal on success; returns a gRPC error (Unauthenticated or PermissionDenied) on failure.
func RequireOrgAdmin(ctx context.Context) (authzdomain.Principal, error) {
	p, err := RequireOrgMember(ctx)
	if err != nil {
		return authzdomain.Principal{}, err
	}
	if !membershipdomain.Role(p.Role).IsAdmin() {
		return authzdomain.Principal{}, status.Error(codes.PermissionDenied, "organization admin or owner required")
	}
	return p, nil
}
