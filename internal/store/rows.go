package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-import/internal/model"
)

const rowColumns = `id, run_id, tenant_id, row_number, raw, normalized, status, matched_lead_id, match_score,
	error_message, resolution_reason, resolved_by, resolved_at, created_at, updated_at`

var rowCopyColumns = []string{
	"id", "run_id", "tenant_id", "row_number", "raw", "normalized", "status", "created_at", "updated_at",
}

// InsertRows writes freshly parsed rows. Only the ingestion columns are set.
func (t *sqlTx) InsertRows(ctx context.Context, rows []model.ImportRow) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([][]any, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		raw, err := json.Marshal(r.Raw)
		if err != nil {
			return eris.Wrapf(err, "store: marshal row %d", r.RowNumber)
		}
		norm, err := json.Marshal(r.Norm)
		if err != nil {
			return eris.Wrapf(err, "store: marshal normalized row %d", r.RowNumber)
		}
		values = append(values, []any{
			r.ID, r.RunID, r.TenantID, r.RowNumber, string(raw), string(norm), string(r.Status), r.CreatedAt, r.UpdatedAt,
		})
	}
	if err := t.copyRows(ctx, "import_rows", rowCopyColumns, values); err != nil {
		return eris.Wrap(err, "store: insert rows")
	}
	return nil
}

func (t *sqlTx) GetRow(ctx context.Context, tenantID, runID, rowID string) (*model.ImportRow, error) {
	return t.oneRow(ctx, "get row",
		`SELECT `+rowColumns+` FROM import_rows WHERE tenant_id = $1 AND run_id = $2 AND id = $3`,
		tenantID, runID, rowID)
}

func (t *sqlTx) LockRow(ctx context.Context, tenantID, runID, rowID string) (*model.ImportRow, error) {
	return t.oneRow(ctx, "lock row",
		`SELECT `+rowColumns+` FROM import_rows WHERE tenant_id = $1 AND run_id = $2 AND id = $3`+t.lockClause,
		tenantID, runID, rowID)
}

func (t *sqlTx) oneRow(ctx context.Context, op, query string, args ...any) (*model.ImportRow, error) {
	row, err := scanRow(t.c.queryRow(ctx, query, args...))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: "+op)
	}
	return row, nil
}

// ListRows returns one page of rows in row number order plus the number of
// rows matching the filter.
func (t *sqlTx) ListRows(ctx context.Context, f RowFilter) ([]model.ImportRow, int, error) {
	where := `tenant_id = $1 AND run_id = $2`
	args := []any{f.TenantID, f.RunID}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			args = append(args, string(s))
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		where += ` AND status IN (` + strings.Join(ph, ", ") + `)`
	}

	var total int
	if err := t.c.queryRow(ctx, `SELECT COUNT(*) FROM import_rows WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "store: count rows")
	}

	query := `SELECT ` + rowColumns + ` FROM import_rows WHERE ` + where + ` ORDER BY row_number`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	it, err := t.c.query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "store: list rows")
	}
	rows, err := collect(it, scanRow)
	if err != nil {
		return nil, 0, eris.Wrap(err, "store: scan rows")
	}
	return rows, total, nil
}

// PendingRowIDs returns the ids of the run's pending rows in row number order.
func (t *sqlTx) PendingRowIDs(ctx context.Context, tenantID, runID string) ([]string, error) {
	it, err := t.c.query(ctx,
		`SELECT id FROM import_rows WHERE tenant_id = $1 AND run_id = $2 AND status = $3 ORDER BY row_number`,
		tenantID, runID, string(model.RowStatusPending))
	if err != nil {
		return nil, eris.Wrap(err, "store: pending rows")
	}
	defer it.Close()

	var ids []string
	for it.Next() {
		var id string
		if err := it.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "store: scan pending row")
		}
		ids = append(ids, id)
	}
	return ids, it.Err()
}

// UpdateRowOutcome writes the row's classification and resolution columns.
func (t *sqlTx) UpdateRowOutcome(ctx context.Context, row *model.ImportRow) error {
	row.UpdatedAt = now()
	n, err := t.c.exec(ctx,
		`UPDATE import_rows SET
			status = $4, matched_lead_id = $5, match_score = $6, error_message = $7,
			resolution_reason = $8, resolved_by = $9, resolved_at = $10, updated_at = $11
		WHERE tenant_id = $1 AND run_id = $2 AND id = $3`,
		row.TenantID, row.RunID, row.ID, string(row.Status), row.MatchedLeadID, row.MatchScore, row.ErrorMessage,
		row.ResolutionReason, row.ResolvedBy, row.ResolvedAt, row.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "store: update row %s", row.ID)
	}
	return checkAffected(n, "row", row.ID)
}

func scanRow(row scannable) (*model.ImportRow, error) {
	var (
		r      model.ImportRow
		raw    []byte
		norm   []byte
		status string
	)
	if err := row.Scan(
		&r.ID, &r.RunID, &r.TenantID, &r.RowNumber, &raw, &norm, &status, &r.MatchedLeadID, &r.MatchScore,
		&r.ErrorMessage, &r.ResolutionReason, &r.ResolvedBy, &r.ResolvedAt, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = model.RowStatus(status)
	if err := json.Unmarshal(raw, &r.Raw); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal raw row")
	}
	if err := json.Unmarshal(norm, &r.Norm); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal normalized row")
	}
	return &r, nil
}
