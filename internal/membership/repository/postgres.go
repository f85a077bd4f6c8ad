package repository

import (
	"context"
	"database/sql"
	"errors"

	"tenant-authz/internal/db"
	"tenant-authz/internal/membership/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a membership repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetMembershipByUserAndOrg returns the membership for the given user and org, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error) {
	var (
		m    domain.Membership
		role string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT ou.user_id, ou.org_id, r.name, ou.created_at
		FROM organization_users ou
		JOIN roles r ON ou.role_id = r.id
		WHERE ou.user_id = $1 AND ou.org_id = $2`,
		userID, orgID,
	).Scan(&m.UserID, &m.OrgID, &role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Role = domain.Role(role)
	return &m, nil
}

// GetRole returns the role name for the user in the org; ok is false when the user is not a member.
func (r *PostgresRepository) GetRole(ctx context.Context, userID, orgID string) (domain.Role, bool, error) {
	m, err := r.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil || m == nil {
		return "", false, err
	}
	return m.Role, true, nil
}

// CreateMembership adds the user to the org with the named role.
// Re-adding an existing member surfaces as db.ErrDuplicate; an unknown user, org or role as db.ErrInvalidReference.
func (r *PostgresRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO organization_users (user_id, org_id, role_id, created_at)
		SELECT $1, $2, r.id, $4 FROM roles r WHERE r.name = $3`,
		m.UserID, m.OrgID, string(m.Role), m.CreatedAt,
	)
	if err != nil {
		return db.Classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrInvalidReference
	}
	return nil
}
