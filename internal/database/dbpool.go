package database

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Rows is the driver-agnostic result set used by repositories.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

// Row is a single-row result.
type Row interface {
	Scan(dest ...any) error
}

// Result reports the outcome of a statement execution.
type Result interface {
	RowsAffected() (int64, error)
}

// DBPool is the query surface repositories depend on. Both the pgx pool and
// database/sql connections satisfy it through the wrapper types below.
type DBPool interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (Result, error)
}

type PgxRows struct{ pgx.Rows }

func (r PgxRows) Scan(dest ...any) error {
	return r.Rows.Scan(dest...)
}

func (r PgxRows) Close() {
	r.Rows.Close()
}

func (r PgxRows) Err() error {
	return r.Rows.Err()
}

func (r PgxRows) Next() bool {
	return r.Rows.Next()
}

type PgxRow struct{ pgx.Row }

func (r PgxRow) Scan(dest ...any) error {
	return r.Row.Scan(dest...)
}

type PgxResult struct{ pgconn.CommandTag }

func (r PgxResult) RowsAffected() (int64, error) {
	return r.CommandTag.RowsAffected(), nil
}

type SQLRows struct{ *sql.Rows }

func (r SQLRows) Scan(dest ...any) error {
	return r.Rows.Scan(dest...)
}

func (r SQLRows) Close() {
	_ = r.Rows.Close()
}

func (r SQLRows) Err() error {
	return r.Rows.Err()
}

func (r SQLRows) Next() bool {
	return r.Rows.Next()
}

type SQLRow struct{ *sql.Row }

func (r SQLRow) Scan(dest ...any) error {
	return r.Row.Scan(dest...)
}

type SQLResult struct{ sql.Result }

func (r SQLResult) RowsAffected() (int64, error) {
	return r.Result.RowsAffected()
}
