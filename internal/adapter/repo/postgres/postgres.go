// Package postgres provides PostgreSQL adapters for the gateway's
// persistence ports: response cache, monthly usage ledger, encrypted
// credentials and subscription lookups.
//
// Repos depend on a minimal pool interface rather than *pgxpool.Pool so
// tests can substitute a fake without a database.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the minimal subset of pgxpool used by the repos.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}
