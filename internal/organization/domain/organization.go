package domain

import (
	"errors"
	"regexp"
	"time"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Org represents an organization/tenant.
type Org struct {
	ID        string
	Name      string
	Slug      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	if o.ID == "" {
		return errors.New("id is required")
	}
	if o.Name == "" {
		return errors.New("name is required")
	}
	if !slugPattern.MatchString(o.Slug) {
		return errors.New("slug must be lowercase letters, digits and single hyphens")
	}
	return nil
}
