package leadimport

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lead-import/internal/apperr"
	"github.com/sells-group/lead-import/internal/merge"
	"github.com/sells-group/lead-import/internal/model"
	"github.com/sells-group/lead-import/internal/normalize"
	"github.com/sells-group/lead-import/internal/store"
)

// Action is a reviewer's decision on a soft duplicate.
type Action string

// Resolution actions.
const (
	ActionMerge  Action = "merge"
	ActionCreate Action = "create"
	ActionSkip   Action = "skip"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionMerge, ActionCreate, ActionSkip:
		return a, nil
	default:
		return "", apperr.Validation("resolve: action must be merge, create or skip, got %q", s)
	}
}

// ResolveInput is a resolution request for one SOFT_DUPLICATE row.
type ResolveInput struct {
	TenantID      string
	RunID         string
	RowID         string
	Action        Action
	MatchedLeadID string
	ChosenFields  map[string]model.FieldChoice
	Reason        *string
	ActorID       string
}

// ResolveResult is the row after resolution and the lead it now points at.
type ResolveResult struct {
	Row      *model.ImportRow
	Lead     *model.Lead
	MergeLog *model.MergeLog
}

func (in ResolveInput) validate() error {
	switch {
	case in.TenantID == "" || in.RunID == "" || in.RowID == "":
		return apperr.Validation("resolve: tenant, run and row ids are required")
	case in.ActorID == "":
		return apperr.Validation("resolve: actor id is required")
	}
	if _, err := ParseAction(string(in.Action)); err != nil {
		return err
	}
	if in.Action == ActionMerge {
		if in.MatchedLeadID == "" {
			return apperr.Validation("resolve: merge requires matchedLeadId")
		}
		if in.ChosenFields == nil {
			return apperr.Validation("resolve: merge requires chosenFields")
		}
	}
	return nil
}

// Resolve applies a reviewer's decision to a SOFT_DUPLICATE row and moves the
// row's count from the soft bucket to its new bucket. Rows in any other state
// are rejected, so a resolution is never applied twice.
//
// merge creates a lead from the row and folds it into MatchedLeadID in the
// same transaction; the row becomes HARD_DUPLICATE of the surviving lead.
// create makes a new lead and marks the row CREATED. skip marks it SKIPPED.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (*ResolveResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Action == ActionMerge {
		if err := merge.ValidateChoices(in.ChosenFields); err != nil {
			return nil, err
		}
	}

	var res *ResolveResult
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		res, err = s.resolve(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, storageErr(err, "import: resolve row")
	}

	fields := []zap.Field{
		zap.String("component", "leadimport"),
		zap.String("run_id", in.RunID),
		zap.String("row_id", in.RowID),
		zap.Int("row_number", res.Row.RowNumber),
		zap.String("action", string(in.Action)),
		zap.String("actor_id", in.ActorID),
	}
	if res.Lead != nil {
		fields = append(fields, zap.String("lead_id", res.Lead.ID))
	}
	zap.L().Info("import: soft duplicate resolved", fields...)
	return res, nil
}

func (s *Service) resolve(ctx context.Context, tx store.Tx, in ResolveInput) (*ResolveResult, error) {
	run, err := requireRun(ctx, tx, in.TenantID, in.RunID)
	if err != nil {
		return nil, err
	}
	row, err := tx.LockRow(ctx, in.TenantID, in.RunID, in.RowID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperr.NotFound("row %s not found in run %s", in.RowID, in.RunID)
	}
	if row.Status != model.RowStatusSoftDuplicate {
		return nil, apperr.Conflict("row %d is %s; only soft duplicates can be resolved", row.RowNumber, row.Status)
	}

	res := &ResolveResult{Row: row}
	delta := model.RunCounts{SoftDuplicate: -1}

	switch in.Action {
	case ActionSkip:
		row.Status = model.RowStatusSkipped
		delta.Skipped = 1

	case ActionCreate:
		lead, err := s.insertRowLead(ctx, tx, run, row)
		if err != nil {
			return nil, err
		}
		row.Status = model.RowStatusCreated
		row.MatchedLeadID = &lead.ID
		res.Lead = lead
		delta.Created = 1

	case ActionMerge:
		incoming, err := s.insertRowLead(ctx, tx, run, row)
		if err != nil {
			return nil, err
		}
		merged, err := merge.Apply(ctx, tx, merge.Input{
			TenantID:      in.TenantID,
			PrimaryLeadID: in.MatchedLeadID,
			MergedLeadID:  incoming.ID,
			ChosenFields:  in.ChosenFields,
			Reason:        in.Reason,
			ActorID:       in.ActorID,
		})
		if err != nil {
			return nil, err
		}
		row.Status = model.RowStatusHardDuplicate
		row.MatchedLeadID = &merged.Primary.ID
		res.Lead = merged.Primary
		res.MergeLog = merged.Log
		delta.HardDuplicate = 1
	}

	resolvedAt := s.now()
	row.ResolutionReason = in.Reason
	row.ResolvedBy = &in.ActorID
	row.ResolvedAt = &resolvedAt
	if err := tx.UpdateRowOutcome(ctx, row); err != nil {
		return nil, err
	}
	if _, err := tx.AdjustRunCounts(ctx, in.TenantID, in.RunID, delta); err != nil {
		return nil, err
	}
	return res, nil
}

// insertRowLead creates a lead from a row's mapped payload.
func (s *Service) insertRowLead(ctx context.Context, tx store.Tx, run *model.ImportRun, row *model.ImportRow) (*model.Lead, error) {
	payload, err := payloadFor(run.Mapping, row.Raw)
	if err != nil {
		return nil, err
	}
	lead := s.leadFromPayload(run.TenantID, run.ID, payload, normalize.LeadPayload(payload))
	if err := tx.InsertLead(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}
