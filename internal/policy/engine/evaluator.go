package engine

import (
	"context"

	membershipdomain "tenant-authz/internal/membership/domain"
)

// Actions understood by the built-in role policy.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)

// Input is what a permission check is decided on. Role must come from the
// authorization context, never from token claims.
type Input struct {
	OrgID    string
	Role     membershipdomain.Role
	Action   string
	Resource string
}

// Evaluator decides whether a role may perform an action on a resource inside an org.
type Evaluator interface {
	Allowed(ctx context.Context, in Input) (bool, error)
}

// ActionForVerb maps an audit verb (list, get, create, update, delete) to a policy action.
func ActionForVerb(verb string) string {
	switch verb {
	case "list", "get":
		return ActionRead
	case "delete":
		return ActionDelete
	default:
		return ActionWrite
	}
}
