package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const cursorName = "querylens_cursor"

// PgxDriver runs statements on a pgx pool inside read-only transactions.
// Rows are pulled through a server-side cursor so no more than maxRows ever
// cross the wire.
type PgxDriver struct {
	pool       *pgxpool.Pool
	searchPath string
}

// NewPgxDriver creates a driver. searchPath, when set, is applied per
// transaction so unqualified names resolve against it.
func NewPgxDriver(pool *pgxpool.Pool, searchPath string) *PgxDriver {
	return &PgxDriver{pool: pool, searchPath: searchPath}
}

// Fetch implements Driver.
func (d *PgxDriver) Fetch(ctx context.Context, sql string, maxRows int, timeout time.Duration) (*Rows, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, mapPgError(err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return nil, mapPgError(err)
	}
	if d.searchPath != "" {
		if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+pgx.Identifier{d.searchPath}.Sanitize()); err != nil {
			return nil, mapPgError(err)
		}
	}

	if _, err := tx.Exec(ctx, "DECLARE "+cursorName+" NO SCROLL CURSOR FOR "+sql); err != nil {
		return nil, mapPgError(err)
	}

	rows, err := tx.Query(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", maxRows, cursorName))
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := &Rows{Columns: make([]string, len(fields))}
	for i, f := range fields {
		out.Columns[i] = f.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, mapPgError(err)
		}
		out.Values = append(out.Values, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}

	return out, nil
}

// Ping checks connectivity.
func (d *PgxDriver) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &DBError{Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}
	return err
}
