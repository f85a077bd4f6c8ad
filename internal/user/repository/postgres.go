package repository

import (
	"context"
	"database/sql"
	"errors"

	"tenant-authz/internal/db"
	"tenant-authz/internal/user/domain"
)

const userColumns = `id, email, password_hash, first_name, last_name, is_active, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// IsActive returns the is_active flag for id; a missing user is reported as inactive.
func (r *PostgresRepository) IsActive(ctx context.Context, id string) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `SELECT is_active FROM users WHERE id = $1`, id).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return active, nil
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
// A duplicate email surfaces as db.ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.PasswordHash, nullString(u.FirstName), nullString(u.LastName), u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	return db.Classify(err)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u         domain.User
		firstName sql.NullString
		lastName  sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &firstName, &lastName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.FirstName = firstName.String
	u.LastName = lastName.String
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
