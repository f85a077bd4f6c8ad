package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authzdomain "tenant-authz/internal/authz/domain"
	membershipdomain "tenant-authz/internal/membership/domain"
	"tenant-authz/internal/policy/engine"
)

// RequirePermission ensures the caller's role may perform action on resource in the context org.
// An evaluator failure denies with Internal; the caller never gets access on error.
func RequirePermission(ctx context.Context, evaluator engine.Evaluator, action, resource string) (authzdomain.Principal, error) {
	p, err := RequireOrgMember(ctx)
	if err != nil {
		return authzdomain.Principal{}, err
	}
	allowed, err := evaluator.Allowed(ctx, engine.Input{
		OrgID:    p.OrgID,
		Role:     membershipdomain.Role(p.Role),
		Action:   action,
		Resource: resource,
	})
	if err != nil {
		return authzdomain.Principal{}, status.Error(codes.Internal, "failed to evaluate policy")
	}
	if !allowed {
		return authzdomain.Principal{}, status.Errorf(codes.PermissionDenied, "role %s may not %s %s", p.Role, action, resource)
	}
	return p, nil
}
