package authz

import (
	"context"

	"tenant-authz/internal/authz/domain"
)

type contextKey struct{ name string }

var authorizationKey = contextKey{"authorization"}

// WithAuthorization returns a context carrying ac. Transport boundaries call this once per request
// after Authorize succeeds; nothing downstream replaces it.
func WithAuthorization(ctx context.Context, ac domain.AuthorizationContext) context.Context {
	return context.WithValue(ctx, authorizationKey, ac)
}

// FromContext returns the authorization context and true if one was attached.
func FromContext(ctx context.Context) (domain.AuthorizationContext, bool) {
	ac, ok := ctx.Value(authorizationKey).(domain.AuthorizationContext)
	return ac, ok
}

// GetUserID returns the authorized subject and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	ac, ok := FromContext(ctx)
	if !ok || ac.SubjectID() == "" {
		return "", false
	}
	return ac.SubjectID(), true
}

// GetOrgID returns the authorized org and true if set; otherwise "", false.
// Anonymous requests have no org.
func GetOrgID(ctx context.Context) (string, bool) {
	ac, ok := FromContext(ctx)
	if !ok || ac.OrgID() == "" {
		return "", false
	}
	return ac.OrgID(), true
}
