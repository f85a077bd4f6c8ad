package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes mapped to typed errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

var (
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("resource already exists")
	// ErrInvalidReference is returned when a write references a row that does not exist.
	ErrInvalidReference = errors.New("invalid reference")
)

// Classify maps Postgres constraint violations to ErrDuplicate or ErrInvalidReference,
// keeping the driver error in the chain. Other errors (and nil) are returned unchanged.
func Classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		return errors.Join(ErrDuplicate, err)
	case foreignKeyViolation:
		return errors.Join(ErrInvalidReference, err)
	}
	return err
}
