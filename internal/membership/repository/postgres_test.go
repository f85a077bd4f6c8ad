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
	"tenant-authz/internal/membership/domain"
)

var selectMembership = regexp.QuoteMeta(`SELECT ou.user_id, ou.org_id, r.name, ou.created_at`)

func TestPostgresRepository_GetRole_Found(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(selectMembership).
		WithArgs("user-1", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "org_id", "name", "created_at"}).
			AddRow("user-1", "org-1", "admin", created))

	repo := NewPostgresRepository(conn)
	role, ok, err := repo.GetRole(context.Background(), "user-1", "org-1")
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if !ok || role != domain.RoleAdmin {
		t.Errorf("GetRole = (%q, %v), want (admin, true)", role, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresRepository_GetMembership_NotFound(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	mock.ExpectQuery(selectMembership).
		WithArgs("user-1", "org-2").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "org_id", "name", "created_at"}))

	repo := NewPostgresRepository(conn)
	m, err := repo.GetMembershipByUserAndOrg(context.Background(), "user-1", "org-2")
	if err != nil {
		t.Fatalf("GetMembershipByUserAndOrg: %v", err)
	}
	if m != nil {
		t.Errorf("membership = %+v, want nil", m)
	}
}

func TestPostgresRepository_GetRole_DatabaseError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	mock.ExpectQuery(selectMembership).WillReturnError(errors.New("connection reset"))

	repo := NewPostgresRepository(conn)
	_, ok, err := repo.GetRole(context.Background(), "user-1", "org-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if ok {
		t.Error("ok should be false on error")
	}
}

func TestPostgresRepository_CreateMembership(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO organization_users`)
	testCases := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "created",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "duplicate",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insert).WillReturnError(&pgconn.PgError{Code: "23505"})
			},
			wantErr: db.ErrDuplicate,
		},
		{
			name: "unknown role",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: db.ErrInvalidReference,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer conn.Close()
			tc.setup(mock)

			err = NewPostgresRepository(conn).CreateMembership(context.Background(), &domain.Membership{
				UserID: "user-1", OrgID: "org-1", Role: domain.RoleMember, CreatedAt: time.Now().UTC(),
			})
			if tc.wantErr == nil && err != nil {
				t.Fatalf("CreateMembership: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("CreateMembership = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
