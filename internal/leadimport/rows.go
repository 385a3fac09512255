package leadimport

import (
	"context"

	"github.com/sells-group/lead-import/internal/apperr"
	"github.com/sells-group/lead-import/internal/model"
	"github.com/sells-group/lead-import/internal/store"
)

// RowQuery selects one page of a run's rows. Page is 1-based; zero values
// select the first page at the default size.
type RowQuery struct {
	TenantID string
	RunID    string
	Bucket   model.RowBucket
	Page     int
	PageSize int
}

// RowPage is one page of rows plus the number of rows matching the bucket.
type RowPage struct {
	Rows     []model.ImportRow `json:"rows"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// GetRun returns a run with its current counters.
func (s *Service) GetRun(ctx context.Context, tenantID, runID string) (*model.ImportRun, error) {
	var run *model.ImportRun
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		run, err = requireRun(ctx, tx, tenantID, runID)
		return err
	})
	if err != nil {
		return nil, storageErr(err, "import: get run")
	}
	return run, nil
}

// Preview returns the first limit rows of a run by row number. It changes nothing.
func (s *Service) Preview(ctx context.Context, tenantID, runID string, limit int) ([]model.ImportRow, error) {
	if limit < 1 || limit > MaxPreviewLimit {
		return nil, apperr.Validation("preview: limit must be between 1 and %d, got %d", MaxPreviewLimit, limit)
	}
	var rows []model.ImportRow
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := requireRun(ctx, tx, tenantID, runID); err != nil {
			return err
		}
		var err error
		rows, _, err = tx.ListRows(ctx, store.RowFilter{TenantID: tenantID, RunID: runID, Limit: limit})
		return err
	})
	if err != nil {
		return nil, storageErr(err, "import: preview")
	}
	return rows, nil
}

// ListRows pages through a run's rows filtered by outcome bucket.
func (s *Service) ListRows(ctx context.Context, q RowQuery) (*RowPage, error) {
	statuses, ok := q.Bucket.Statuses()
	if !ok {
		return nil, apperr.Validation("rows: unknown bucket %q", q.Bucket)
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return nil, apperr.Validation("rows: page must be at least 1, got %d", q.Page)
	}
	if q.PageSize == 0 {
		q.PageSize = s.opts.DefaultPageSize
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return nil, apperr.Validation("rows: page size must be between 1 and %d, got %d", MaxPageSize, q.PageSize)
	}

	page := &RowPage{Page: q.Page, PageSize: q.PageSize}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := requireRun(ctx, tx, q.TenantID, q.RunID); err != nil {
			return err
		}
		var err error
		page.Rows, page.Total, err = tx.ListRows(ctx, store.RowFilter{
			TenantID: q.TenantID,
			RunID:    q.RunID,
			Statuses: statuses,
			Limit:    q.PageSize,
			Offset:   (q.Page - 1) * q.PageSize,
		})
		return err
	})
	if err != nil {
		return nil, storageErr(err, "import: list rows")
	}
	if page.Rows == nil {
		page.Rows = []model.ImportRow{}
	}
	return page, nil
}

func requireRun(ctx context.Context, tx store.Tx, tenantID, runID string) (*model.ImportRun, error) {
	run, err := tx.GetRun(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apperr.NotFound("run %s not found", runID)
	}
	return run, nil
}
