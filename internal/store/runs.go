package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-import/internal/model"
)

// sqlTx implements Tx for both drivers.
type sqlTx struct {
	c conn
	// lockClause is appended to row-locking selects.
	lockClause string
	// copyRows bulk-loads a table inside the transaction.
	copyRows func(ctx context.Context, table string, columns []string, rows [][]any) error
}

var _ Tx = (*sqlTx)(nil)

const runColumns = `id, tenant_id, uploader_id, filename, idempotency_key, status, headers, column_mapping,
	total_rows, processed_rows, created_count, hard_duplicate_count, soft_duplicate_count, error_count, skipped_count,
	failure_reason, created_at, updated_at, completed_at`

func (t *sqlTx) InsertRun(ctx context.Context, run *model.ImportRun) (bool, error) {
	headers, err := json.Marshal(run.Headers)
	if err != nil {
		return false, eris.Wrap(err, "store: marshal headers")
	}
	mapping, err := marshalMapping(run.Mapping)
	if err != nil {
		return false, err
	}

	n, err := t.c.exec(ctx,
		`INSERT INTO import_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`,
		run.ID, run.TenantID, run.UploaderID, run.Filename, run.IdempotencyKey, string(run.Status),
		string(headers), mapping, run.TotalRows, run.Counts.Processed, run.Counts.Created,
		run.Counts.HardDuplicate, run.Counts.SoftDuplicate, run.Counts.Error, run.Counts.Skipped,
		run.FailureReason, run.CreatedAt, run.UpdatedAt, run.CompletedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "store: insert run")
	}
	return n > 0, nil
}

func (t *sqlTx) GetRun(ctx context.Context, tenantID, runID string) (*model.ImportRun, error) {
	return t.oneRun(ctx, "get run",
		`SELECT `+runColumns+` FROM import_runs WHERE tenant_id = $1 AND id = $2`, tenantID, runID)
}

func (t *sqlTx) GetRunByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.ImportRun, error) {
	return t.oneRun(ctx, "get run by key",
		`SELECT `+runColumns+` FROM import_runs WHERE tenant_id = $1 AND idempotency_key = $2`, tenantID, key)
}

func (t *sqlTx) LockRun(ctx context.Context, tenantID, runID string) (*model.ImportRun, error) {
	return t.oneRun(ctx, "lock run",
		`SELECT `+runColumns+` FROM import_runs WHERE tenant_id = $1 AND id = $2`+t.lockClause, tenantID, runID)
}

func (t *sqlTx) oneRun(ctx context.Context, op, query string, args ...any) (*model.ImportRun, error) {
	run, err := scanRun(t.c.queryRow(ctx, query, args...))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: "+op)
	}
	return run, nil
}

// UpdateRunState writes the run's status, mapping, failure reason and
// completion time. Counters are only changed through AdjustRunCounts.
func (t *sqlTx) UpdateRunState(ctx context.Context, run *model.ImportRun) error {
	mapping, err := marshalMapping(run.Mapping)
	if err != nil {
		return err
	}
	run.UpdatedAt = now()
	n, err := t.c.exec(ctx,
		`UPDATE import_runs
		SET status = $3, column_mapping = $4, failure_reason = $5, completed_at = $6, updated_at = $7
		WHERE tenant_id = $1 AND id = $2`,
		run.TenantID, run.ID, string(run.Status), mapping, run.FailureReason, run.CompletedAt, run.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "store: update run %s", run.ID)
	}
	return checkAffected(n, "run", run.ID)
}

// AdjustRunCounts adds delta to the run's counters in one statement and
// returns the new totals.
func (t *sqlTx) AdjustRunCounts(ctx context.Context, tenantID, runID string, delta model.RunCounts) (model.RunCounts, error) {
	var c model.RunCounts
	err := t.c.queryRow(ctx,
		`UPDATE import_runs SET
			processed_rows = processed_rows + $3,
			created_count = created_count + $4,
			hard_duplicate_count = hard_duplicate_count + $5,
			soft_duplicate_count = soft_duplicate_count + $6,
			error_count = error_count + $7,
			skipped_count = skipped_count + $8,
			updated_at = $9
		WHERE tenant_id = $1 AND id = $2
		RETURNING processed_rows, created_count, hard_duplicate_count, soft_duplicate_count, error_count, skipped_count`,
		tenantID, runID, delta.Processed, delta.Created, delta.HardDuplicate, delta.SoftDuplicate,
		delta.Error, delta.Skipped, now(),
	).Scan(&c.Processed, &c.Created, &c.HardDuplicate, &c.SoftDuplicate, &c.Error, &c.Skipped)
	if isNoRows(err) {
		return c, eris.Errorf("store: run not found: %s", runID)
	}
	if err != nil {
		return c, eris.Wrapf(err, "store: adjust run counts %s", runID)
	}
	return c, nil
}

func scanRun(row scannable) (*model.ImportRun, error) {
	var (
		r       model.ImportRun
		status  string
		headers []byte
		mapping []byte
	)
	if err := row.Scan(
		&r.ID, &r.TenantID, &r.UploaderID, &r.Filename, &r.IdempotencyKey, &status, &headers, &mapping,
		&r.TotalRows, &r.Counts.Processed, &r.Counts.Created, &r.Counts.HardDuplicate,
		&r.Counts.SoftDuplicate, &r.Counts.Error, &r.Counts.Skipped,
		&r.FailureReason, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt,
	); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &r.Headers); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal headers")
		}
	}
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &r.Mapping); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal mapping")
		}
	}
	return &r, nil
}

// marshalMapping encodes a mapping, keeping an unset mapping NULL.
func marshalMapping(m model.ColumnMapping) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal mapping")
	}
	return string(data), nil
}
