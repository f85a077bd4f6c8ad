package repository

import (
	"context"
	"database/sql"
	"errors"

	"tenant-authz/internal/db"
	"tenant-authz/internal/organization/domain"
)

const orgColumns = `id, name, slug, is_active, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an organization repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	return scanOrg(r.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

// GetOrganizationBySlug returns the organization for slug, or nil if not found.
func (r *PostgresRepository) GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Org, error) {
	return scanOrg(r.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug))
}

// CreateOrganization persists o. A taken slug or id surfaces as db.ErrDuplicate.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, o *domain.Org) error {
	if err := o.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (`+orgColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.Name, o.Slug, o.IsActive, o.CreatedAt, o.UpdatedAt,
	)
	return db.Classify(err)
}

func scanOrg(row *sql.Row) (*domain.Org, error) {
	var o domain.Org
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.IsActive, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}
