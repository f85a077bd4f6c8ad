// Package rbac holds the role checks downstream handlers run after the authorization pipeline
// has attached an AuthorizationContext. Roles are read from that context, which took them from
// the membership row for this request.
package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tenant-authz/internal/authz"
	authzdomain "tenant-authz/internal/authz/domain"
)

// RequireOrgMember ensures the request was authorized for an org (any role).
// Returns the principal on success; returns a gRPC Unauthenticated error for anonymous or unauthorized contexts.
func RequireOrgMember(ctx context.Context) (authzdomain.Principal, error) {
	ac, ok := authz.FromContext(ctx)
	if !ok || ac.Anonymous() || ac.OrgID() == "" || ac.SubjectID() == "" {
		return authzdomain.Principal{}, status.Error(codes.Unauthenticated, "org and user context required")
	}
	return ac.Principal(), nil
}
