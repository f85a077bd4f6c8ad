package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"tenant-authz/internal/db"
	"tenant-authz/internal/user/domain"
)

func TestPostgresRepository_IsActive(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT is_active FROM users WHERE id = $1`)
	testCases := []struct {
		name   string
		rows   *sqlmock.Rows
		err    error
		want   bool
		wantEr bool
	}{
		{name: "active", rows: sqlmock.NewRows([]string{"is_active"}).AddRow(true), want: true},
		{name: "inactive", rows: sqlmock.NewRows([]string{"is_active"}).AddRow(false), want: false},
		{name: "missing user", rows: sqlmock.NewRows([]string{"is_active"}), want: false},
		{name: "db error", err: errors.New("timeout"), wantEr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer conn.Close()

			exp := mock.ExpectQuery(query).WithArgs("user-1")
			if tc.err != nil {
				exp.WillReturnError(tc.err)
			} else {
				exp.WillReturnRows(tc.rows)
			}

			got, err := NewPostgresRepository(conn).IsActive(context.Background(), "user-1")
			if tc.wantEr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("IsActive: %v", err)
			}
			if got != tc.want {
				t.Errorf("IsActive = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPostgresRepository_GetByID(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "first_name", "last_name", "is_active", "created_at", "updated_at"}).
			AddRow("user-1", "a@example.com", "hash", "Ada", nil, true, now, now))

	u, err := NewPostgresRepository(conn).GetByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u == nil {
		t.Fatal("GetByID returned nil user")
	}
	if u.Email != "a@example.com" || u.FirstName != "Ada" || u.LastName != "" || !u.IsActive {
		t.Errorf("user = %+v", u)
	}
}

func TestPostgresRepository_Create_DuplicateEmail(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err = NewPostgresRepository(conn).Create(context.Background(), &domain.User{
		ID: "user-2", Email: "a@example.com", PasswordHash: "hash", IsActive: true,
	})
	if !errors.Is(err, db.ErrDuplicate) {
		t.Errorf("Create = %v, want ErrDuplicate", err)
	}
}

func TestUser_Validate(t *testing.T) {
	if err := (&domain.User{ID: "u", Email: "e", PasswordHash: "h"}).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := (&domain.User{ID: "u", PasswordHash: "h"}).Validate(); err == nil {
		t.Error("Validate without email should fail")
	}
}
