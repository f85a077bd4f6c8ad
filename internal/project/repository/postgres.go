package repository

import (
	"context"
	"database/sql"

	"tenant-authz/internal/db"
	"tenant-authz/internal/project/domain"
)

const projectColumns = `id, org_id, name, COALESCE(description, ''), created_by, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a project repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// ListByOrg returns the org's projects, newest first. The explicit org_id filter is kept
// alongside the row-level security policy.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Project, error) {
	var out []*domain.Project
	err := db.WithOrgScope(ctx, r.db, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+projectColumns+` FROM projects WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p domain.Project
			if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return err
			}
			out = append(out, &p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts p inside p.OrgID's scope. An unknown creator or org surfaces as db.ErrInvalidReference.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Project) error {
	return db.WithOrgScope(ctx, r.db, p.OrgID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, org_id, name, description, created_by, created_at, updated_at)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`,
			p.ID, p.OrgID, p.Name, p.Description, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
		)
		return err
	})
}
