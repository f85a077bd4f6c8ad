package domain

import "time"

// Policy is an org-level Rego module. Enabled policies are loaded next to the built-in
// role rules and can only widen what those rules allow.
type Policy struct {
	ID        string
	OrgID     string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
