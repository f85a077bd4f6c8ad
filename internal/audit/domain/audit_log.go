package domain

import "time"

// ActionAuthzRejected is recorded for every request the authorization pipeline rejects.
const ActionAuthzRejected = "authz_rejected"

// AuditLog represents an audit event. OrgID is always set; events without an org use a sentinel.
type AuditLog struct {
	ID        string
	OrgID     string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
