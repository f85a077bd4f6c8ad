package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoOrgScope is returned when an org-scoped query is attempted without an org id.
var ErrNoOrgScope = errors.New("db: org scope required")

// WithOrgScope runs fn inside a transaction whose app.current_org_id setting is bound to orgID,
// so row-level security policies keyed on that setting only expose the org's rows. The setting is
// transaction-local and disappears on commit or rollback. fn's error rolls the transaction back.
func WithOrgScope(ctx context.Context, conn *sql.DB, orgID string, fn func(tx *sql.Tx) error) error {
	if orgID == "" {
		return ErrNoOrgScope
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin org scope: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.current_org_id', $1, true)`, orgID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("bind org scope: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return Classify(err)
	}
	return tx.Commit()
}
