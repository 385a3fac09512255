package leadimport

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/lead-import/internal/apperr"
	"github.com/sells-group/lead-import/internal/fetcher"
	"github.com/sells-group/lead-import/internal/model"
	"github.com/sells-group/lead-import/internal/normalize"
	"github.com/sells-group/lead-import/internal/store"
)

// CreateRunInput is an uploaded file.
type CreateRunInput struct {
	TenantID       string
	UploaderID     string
	Filename       string
	Data           []byte
	IdempotencyKey string
}

// CreateFromFile parses an upload and stores it as a new run in
// PENDING_MAPPING with one PENDING row per data row. The run and its rows
// are written in one transaction.
//
// With an idempotency key, a run already created under the same tenant and
// key is returned unchanged and nothing new is written.
func (s *Service) CreateFromFile(ctx context.Context, in CreateRunInput) (*model.ImportRun, error) {
	if in.TenantID == "" {
		return nil, apperr.Validation("import: tenant id is required")
	}
	if in.UploaderID == "" {
		return nil, apperr.Validation("import: uploader id is required")
	}
	if int64(len(in.Data)) > s.opts.MaxFileBytes {
		return nil, apperr.Validation("import: file is %d bytes, limit is %d", len(in.Data), s.opts.MaxFileBytes)
	}
	key := strings.TrimSpace(in.IdempotencyKey)

	log := zap.L().With(
		zap.String("component", "leadimport"),
		zap.String("tenant_id", in.TenantID),
		zap.String("filename", in.Filename),
	)

	if key != "" {
		existing, err := s.runByKey(ctx, in.TenantID, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			log.Info("import: idempotency key matched existing run", zap.String("run_id", existing.ID))
			return existing, nil
		}
	}

	table, err := fetcher.ParseTable(ctx, in.Filename, in.Data)
	if err != nil {
		if errors.Is(err, fetcher.ErrEmptyFile) || errors.Is(err, fetcher.ErrNoRows) {
			return nil, apperr.Invalid(err, "import: nothing to import")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Invalid(err, "import: unreadable file")
	}

	now := s.now()
	run := &model.ImportRun{
		ID:         uuid.NewString(),
		TenantID:   in.TenantID,
		UploaderID: in.UploaderID,
		Filename:   in.Filename,
		Status:     model.RunStatusPendingMapping,
		Headers:    table.Header,
		TotalRows:  len(table.Rows),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if key != "" {
		run.IdempotencyKey = &key
	}
	rows := buildRows(run, table, now)

	var winner *model.ImportRun
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		winner = nil
		inserted, err := tx.InsertRun(ctx, run)
		if err != nil {
			return err
		}
		if !inserted {
			// Lost a race on the idempotency key.
			winner, err = tx.GetRunByIdempotencyKey(ctx, in.TenantID, key)
			if err != nil {
				return err
			}
			if winner == nil {
				return apperr.Conflict("import: run for idempotency key %q disappeared", key)
			}
			return nil
		}
		return tx.InsertRows(ctx, rows)
	})
	if err != nil {
		return nil, storageErr(err, "import: create run")
	}
	if winner != nil {
		log.Info("import: concurrent create converged on existing run", zap.String("run_id", winner.ID))
		return winner, nil
	}

	log.Info("import: run created",
		zap.String("run_id", run.ID),
		zap.String("format", table.Format.String()),
		zap.Int("rows", run.TotalRows),
		zap.Int("columns", len(run.Headers)),
	)
	return run, nil
}

func (s *Service) runByKey(ctx context.Context, tenantID, key string) (*model.ImportRun, error) {
	var run *model.ImportRun
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		run, err = tx.GetRunByIdempotencyKey(ctx, tenantID, key)
		return err
	})
	if err != nil {
		return nil, storageErr(err, "import: look up idempotency key")
	}
	return run, nil
}

// buildRows turns parsed records into PENDING rows keyed by header, numbered
// from 1. The normalized bag is derived from the headers alone since no
// mapping exists yet.
func buildRows(run *model.ImportRun, table *fetcher.Table, now time.Time) []model.ImportRow {
	rows := make([]model.ImportRow, len(table.Rows))
	for i, rec := range table.Rows {
		raw := make(model.Fields, len(table.Header))
		for j, h := range table.Header {
			if j < len(rec) {
				raw[h] = rec[j]
			} else {
				raw[h] = model.Null()
			}
		}
		rows[i] = model.ImportRow{
			ID:        uuid.NewString(),
			RunID:     run.ID,
			TenantID:  run.TenantID,
			RowNumber: i + 1,
			Raw:       raw,
			Norm:      normalize.LeadPayload(raw),
			Status:    model.RowStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return rows
}

// storageErr classifies unclassified storage failures. Errors that already
// carry a kind pass through.
func storageErr(err error, msg string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(err, msg)
}
