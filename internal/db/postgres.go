package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PoolConfig sizes the connection pool. Zero values leave database/sql defaults.
type PoolConfig struct {
	MinIdle int
	MaxOpen int
}

// Open opens a Postgres connection using the given DSN and verifies it with a ping bounded by a
// short timeout. Caller must call Close when done.
func Open(dsn string, pool PoolConfig) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: empty DSN")
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if pool.MaxOpen > 0 {
		conn.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MinIdle > 0 {
		conn.SetMaxIdleConns(pool.MinIdle)
	}
	conn.SetConnMaxIdleTime(30 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
