package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-import/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. All access goes
// through a single connection, so transactions are serialized and row locks
// are implicit.
type SQLiteStore struct {
	db    *sql.DB
	retry resilience.RetryConfig
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, retry: resilience.DefaultRetryConfig()}, nil
}

// SetRetryConfig replaces the retry policy used by WithTx.
func (s *SQLiteStore) SetRetryConfig(cfg resilience.RetryConfig) {
	s.retry = cfg
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	cfg := s.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("store.sqlite", "tx")
	}
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			c := sqlConn{tx: tx}
			return fn(&sqlTx{
				c: c,
				copyRows: func(ctx context.Context, table string, columns []string, rows [][]any) error {
					return insertEach(ctx, c, table, columns, rows)
				},
			})
		})
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	return nil
}

// insertEach stands in for COPY: one INSERT per row inside the transaction.
func insertEach(ctx context.Context, c conn, table string, columns []string, rows [][]any) error {
	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(ph, ", "))
	for i, row := range rows {
		if _, err := c.exec(ctx, query, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s row %d", table, i+1)
		}
	}
	return nil
}

// Migrate applies pending embedded migrations, each in its own transaction.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return eris.Wrap(err, "sqlite: ensure migration table")
	}

	files, err := migrationsFor("sqlite")
	if err != nil {
		return err
	}
	for _, m := range files {
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			var n int
			if err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", m.name,
			).Scan(&n); err != nil {
				return eris.Wrapf(err, "sqlite: check migration %s", m.name)
			}
			if n > 0 {
				return nil
			}
			log.Info("applying migration", zap.String("file", m.name))
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return eris.Wrapf(err, "sqlite: apply migration %s", m.name)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", m.name); err != nil {
				return eris.Wrapf(err, "sqlite: record migration %s", m.name)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
