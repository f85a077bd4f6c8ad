package domain

import (
	"time"
)

// Membership records that a user belongs to an organization with a role.
// It is created when the user joins the org and is read-only to the authorization layer.
type Membership struct {
	UserID    string
	OrgID     string
	Role      Role
	CreatedAt time.Time
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// IsAdmin reports whether r may administer the organization.
func (r Role) IsAdmin() bool {
	return r == RoleOwner || r == RoleAdmin
}
