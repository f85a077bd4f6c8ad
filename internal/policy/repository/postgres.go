package repository

import (
	"context"
	"database/sql"
	"errors"

	"tenant-authz/internal/db"
	"tenant-authz/internal/policy/domain"
)

const policyColumns = `id, org_id, rules, enabled, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a policy repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the policy for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	var p domain.Policy
	err := r.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE id = $1`, id,
	).Scan(&p.ID, &p.OrgID, &p.Rules, &p.Enabled, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListByOrg returns all policies for the given org, oldest first.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM policies WHERE org_id = $1 ORDER BY created_at`, orgID)
}

// GetEnabledPoliciesByOrg returns the org's enabled policies, oldest first.
func (r *PostgresRepository) GetEnabledPoliciesByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM policies WHERE org_id = $1 AND enabled ORDER BY created_at`, orgID)
}

func (r *PostgresRepository) list(ctx context.Context, query, orgID string) ([]*domain.Policy, error) {
	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Create persists the policy to the database. The policy must have ID set.
// An unknown org surfaces as db.ErrInvalidReference.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO policies (id, org_id, rules, enabled, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.OrgID, p.Rules, p.Enabled, p.CreatedAt,
	)
	return db.Classify(err)
}

// Update replaces the rules and enabled flag of an existing policy.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.Policy) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE policies SET rules = $2, enabled = $3 WHERE id = $1`,
		p.ID, p.Rules, p.Enabled,
	)
	return err
}
