package leadimport

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-import/internal/apperr"
	"github.com/sells-group/lead-import/internal/dedupe"
	"github.com/sells-group/lead-import/internal/model"
	"github.com/sells-group/lead-import/internal/normalize"
	"github.com/sells-group/lead-import/internal/store"
)

// zeroRowsReason is recorded on runs that reach execution with nothing to process.
const zeroRowsReason = "run has no data rows"

// Execute classifies every PENDING row of a mapped run in ascending row
// order, each row in its own transaction, and completes the run once every
// row is terminal.
//
// A COMPLETED run is returned unchanged. An EXECUTING run resumes from its
// remaining PENDING rows, so calling Execute again after a crash never
// reprocesses finalized rows. Per-row problems become ERROR rows; storage
// failures stop the call and leave the run resumable.
func (s *Service) Execute(ctx context.Context, tenantID, runID, actorID string) (*model.ImportRun, error) {
	log := zap.L().With(
		zap.String("component", "leadimport"),
		zap.String("tenant_id", tenantID),
		zap.String("run_id", runID),
		zap.String("actor_id", actorID),
	)

	run, pending, err := s.startExecution(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != model.RunStatusExecuting {
		return run, nil
	}

	start := time.Now()
	log.Info("import: executing run", zap.Int("pending_rows", len(pending)), zap.Int("total_rows", run.TotalRows))

	// Leads created earlier in this execution. Consulted alongside the store
	// so same-file duplicates are caught regardless of what the store exposes.
	var created []dedupe.Candidate

	for _, rowID := range pending {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var lead *model.Lead
		err := s.store.WithTx(ctx, func(tx store.Tx) error {
			var err error
			lead, err = s.processRow(ctx, tx, run, rowID, created)
			return err
		})
		if err != nil {
			log.Error("import: row processing failed", zap.String("row_id", rowID), zap.Error(err))
			return nil, storageErr(err, "import: execute row")
		}
		if lead != nil {
			created = append(created, dedupe.Candidate{LeadID: lead.ID, Norm: lead.Norm})
		}
	}

	run, err = s.finishExecution(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	log.Info("import: run executed",
		zap.String("status", string(run.Status)),
		zap.Int("created", run.Counts.Created),
		zap.Int("hard_duplicates", run.Counts.HardDuplicate),
		zap.Int("soft_duplicates", run.Counts.SoftDuplicate),
		zap.Int("errors", run.Counts.Error),
		zap.Duration("elapsed", time.Since(start)),
	)
	return run, nil
}

// startExecution moves the run to EXECUTING and returns its PENDING row ids.
// Runs that are already complete, or fail here, come back in their final
// state with no rows.
func (s *Service) startExecution(ctx context.Context, tenantID, runID string) (*model.ImportRun, []string, error) {
	var (
		run     *model.ImportRun
		pending []string
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		pending = nil
		run, err = tx.LockRun(ctx, tenantID, runID)
		if err != nil {
			return err
		}
		if run == nil {
			return apperr.NotFound("run %s not found", runID)
		}

		switch run.Status {
		case model.RunStatusCompleted:
			return nil
		case model.RunStatusPendingMapping:
			return apperr.Conflict("run %s has no column mapping", runID)
		case model.RunStatusFailed:
			return apperr.Conflict("run %s failed and cannot be executed", runID)
		}
		if len(run.Mapping) == 0 {
			return apperr.Conflict("run %s has no column mapping", runID)
		}

		if run.TotalRows == 0 {
			reason := zeroRowsReason
			run.Status = model.RunStatusFailed
			run.FailureReason = &reason
			return tx.UpdateRunState(ctx, run)
		}

		if run.Status != model.RunStatusExecuting {
			run.Status = model.RunStatusExecuting
			if err := tx.UpdateRunState(ctx, run); err != nil {
				return err
			}
		}
		pending, err = tx.PendingRowIDs(ctx, tenantID, runID)
		return err
	})
	if err != nil {
		return nil, nil, storageErr(err, "import: start execution")
	}
	return run, pending, nil
}

// processRow classifies one row and writes its outcome and the run counters.
// It returns the lead it created, if any.
func (s *Service) processRow(
	ctx context.Context,
	tx store.Tx,
	run *model.ImportRun,
	rowID string,
	created []dedupe.Candidate,
) (*model.Lead, error) {
	row, err := tx.LockRow(ctx, run.TenantID, run.ID, rowID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.Status != model.RowStatusPending {
		// Finalized by a concurrent execution of the same run.
		return nil, nil
	}

	var (
		delta = model.RunCounts{Processed: 1}
		lead  *model.Lead
	)

	payload, err := payloadFor(run.Mapping, row.Raw)
	if err != nil {
		msg := err.Error()
		row.Status = model.RowStatusError
		row.ErrorMessage = &msg
		delta.Error = 1
	} else {
		norm := normalize.LeadPayload(payload)
		candidates, unverified, err := s.candidates(ctx, tx, run.TenantID, norm, created)
		if err != nil {
			return nil, err
		}
		match, err := s.matchLive(ctx, tx, run.TenantID, norm, candidates, unverified)
		if err != nil {
			return nil, err
		}

		switch match.Kind {
		case dedupe.MatchHard:
			row.Status = model.RowStatusHardDuplicate
			row.MatchedLeadID = &match.LeadID
			delta.HardDuplicate = 1
		case dedupe.MatchSoft:
			score := match.Score
			row.Status = model.RowStatusSoftDuplicate
			row.MatchedLeadID = &match.LeadID
			row.MatchScore = &score
			delta.SoftDuplicate = 1
		default:
			lead = s.leadFromPayload(run.TenantID, run.ID, payload, norm)
			if err := tx.InsertLead(ctx, lead); err != nil {
				return nil, err
			}
			row.Status = model.RowStatusCreated
			row.MatchedLeadID = &lead.ID
			delta.Created = 1
		}
	}

	if err := tx.UpdateRowOutcome(ctx, row); err != nil {
		return nil, err
	}
	if _, err := tx.AdjustRunCounts(ctx, run.TenantID, run.ID, delta); err != nil {
		return nil, err
	}
	return lead, nil
}

// candidates gathers the leads a row may duplicate: persisted leads sharing an
// identifier or the row's city, then leads created earlier in this execution.
// Accumulated leads the store queries did not return are reported as
// unverified, since a merge may have tombstoned them since creation.
func (s *Service) candidates(
	ctx context.Context,
	tx store.Tx,
	tenantID string,
	norm model.Normalized,
	created []dedupe.Candidate,
) ([]dedupe.Candidate, map[string]bool, error) {
	byIdentity, err := tx.FindLeadsByIdentity(ctx, tenantID, norm)
	if err != nil {
		return nil, nil, err
	}
	var byCity []model.Lead
	if norm.City != nil && *norm.City != "" && norm.Name != nil && *norm.Name != "" {
		if byCity, err = tx.FindLeadsByCity(ctx, tenantID, *norm.City); err != nil {
			return nil, nil, err
		}
	}

	seen := make(map[string]bool, len(byIdentity)+len(byCity)+len(created))
	out := make([]dedupe.Candidate, 0, len(byIdentity)+len(byCity)+len(created))
	add := func(c dedupe.Candidate) {
		if seen[c.LeadID] {
			return
		}
		seen[c.LeadID] = true
		out = append(out, c)
	}
	for _, l := range byIdentity {
		add(dedupe.Candidate{LeadID: l.ID, Norm: l.Norm})
	}
	for _, l := range byCity {
		add(dedupe.Candidate{LeadID: l.ID, Norm: l.Norm})
	}
	unverified := make(map[string]bool)
	for _, c := range created {
		if !seen[c.LeadID] {
			unverified[c.LeadID] = true
		}
		add(c)
	}
	return out, unverified, nil
}

// matchLive classifies norm against candidates. When the best match is an
// unverified lead it is re-read; a lead that is gone or tombstoned is dropped
// and the row is matched again without it.
func (s *Service) matchLive(
	ctx context.Context,
	tx store.Tx,
	tenantID string,
	norm model.Normalized,
	candidates []dedupe.Candidate,
	unverified map[string]bool,
) (dedupe.Match, error) {
	for {
		match := s.matcher.Match(norm, candidates)
		if match.Kind == dedupe.MatchNone || !unverified[match.LeadID] {
			return match, nil
		}
		lead, err := tx.GetLead(ctx, tenantID, match.LeadID)
		if err != nil {
			return dedupe.Match{}, err
		}
		if lead != nil && !lead.Tombstoned() {
			return match, nil
		}
		candidates = slices.DeleteFunc(candidates, func(c dedupe.Candidate) bool {
			return c.LeadID == match.LeadID
		})
	}
}

// finishExecution completes the run once every row has been classified.
func (s *Service) finishExecution(ctx context.Context, tenantID, runID string) (*model.ImportRun, error) {
	var run *model.ImportRun
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		run, err = tx.LockRun(ctx, tenantID, runID)
		if err != nil {
			return err
		}
		if run == nil {
			return apperr.NotFound("run %s not found", runID)
		}
		if run.Status != model.RunStatusExecuting || !run.Done() {
			return nil
		}
		completed := s.now()
		run.Status = model.RunStatusCompleted
		run.CompletedAt = &completed
		return tx.UpdateRunState(ctx, run)
	})
	if err != nil {
		return nil, storageErr(err, "import: finish execution")
	}
	return run, nil
}
