package repository

import (
	"context"
	"database/sql"
	"errors"

	"tenant-authz/internal/audit/domain"
	"tenant-authz/internal/db"
)

// ErrOrgRequired is returned when a read is attempted without an org filter.
var ErrOrgRequired = errors.New("org_id is required")

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// ListByOrg returns audit logs for the given org, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.AuditLog, error) {
	if orgID == "" {
		return nil, ErrOrgRequired
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, user_id, action, resource, ip, metadata, created_at
		FROM audit_logs WHERE org_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		orgID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a    domain.AuditLog
			uid  sql.NullString
			meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.OrgID, &uid, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.UserID = uid.String
		a.Metadata = meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	if a.OrgID == "" {
		return ErrOrgRequired
	}
	uid := sql.NullString{String: a.UserID, Valid: a.UserID != ""}
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, org_id, user_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.OrgID, uid, a.Action, a.Resource, a.IP, meta, a.CreatedAt,
	)
	return db.Classify(err)
}
