package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-import/internal/db"
)

type scannable interface {
	Scan(dest ...any) error
}

type rowIter interface {
	scannable
	Next() bool
	Err() error
	Close()
}

// conn hides the difference between a pgx transaction and a database/sql one.
// Queries are written with $N placeholders.
type conn interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rowIter, error)
	queryRow(ctx context.Context, query string, args ...any) scannable
}

type pgxConn struct {
	q db.Querier
}

func (c pgxConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pgxConn) query(ctx context.Context, query string, args ...any) (rowIter, error) {
	return c.q.Query(ctx, query, args...)
}

func (c pgxConn) queryRow(ctx context.Context, query string, args ...any) scannable {
	return c.q.QueryRow(ctx, query, args...)
}

// sqlConn runs queries on a database/sql transaction, rewriting $N to ?N,
// which SQLite binds the same way.
type sqlConn struct {
	tx *sql.Tx
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

func rebind(query string) string {
	return placeholderRe.ReplaceAllString(query, "?$1")
}

func (c sqlConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.tx.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c sqlConn) query(ctx context.Context, query string, args ...any) (rowIter, error) {
	rows, err := c.tx.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows: rows}, nil
}

func (c sqlConn) queryRow(ctx context.Context, query string, args ...any) scannable {
	return c.tx.QueryRowContext(ctx, rebind(query), args...)
}

type sqlRows struct {
	rows *sql.Rows
}

func (r sqlRows) Next() bool             { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRows) Err() error             { return r.rows.Err() }
func (r sqlRows) Close()                 { _ = r.rows.Close() }

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func checkAffected(n int64, entity, id string) error {
	if n == 0 {
		return eris.Errorf("store: %s not found: %s", entity, id)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

// collect scans every row of it with scan.
func collect[T any](it rowIter, scan func(scannable) (*T, error)) ([]T, error) {
	defer it.Close()
	var out []T
	for it.Next() {
		v, err := scan(it)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, it.Err()
}
