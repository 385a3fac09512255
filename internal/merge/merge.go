// Package merge folds one lead into another. The merged-away lead is
// tombstoned rather than deleted and its history moves to the survivor.
package merge

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/lead-import/internal/apperr"
	"github.com/sells-group/lead-import/internal/model"
	"github.com/sells-group/lead-import/internal/normalize"
	"github.com/sells-group/lead-import/internal/store"
)

// Input describes one merge request.
type Input struct {
	TenantID      string
	PrimaryLeadID string
	MergedLeadID  string
	// ChosenFields picks a side per contested field. Fields left out keep the
	// primary's value.
	ChosenFields map[string]model.FieldChoice
	Reason       *string
	ActorID      string
}

// Result reports what a merge changed.
type Result struct {
	Primary             *model.Lead
	Merged              *model.Lead
	Log                 *model.MergeLog
	ActivitiesMoved     int
	TasksMoved          int
	TombstonesRepointed int
}

// Engine merges leads.
type Engine struct {
	store store.Store
}

// NewEngine creates an Engine backed by st.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// MergeLeadRecords runs Apply in its own transaction.
func (e *Engine) MergeLeadRecords(ctx context.Context, in Input) (*Result, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var res *Result
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		res, err = Apply(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("merge: leads merged",
		zap.String("tenant_id", in.TenantID),
		zap.String("primary_lead_id", in.PrimaryLeadID),
		zap.String("merged_lead_id", in.MergedLeadID),
		zap.Int("activities_moved", res.ActivitiesMoved),
		zap.Int("tasks_moved", res.TasksMoved),
	)
	return res, nil
}

// Validate checks a request without touching storage.
func Validate(in Input) error {
	switch {
	case in.TenantID == "":
		return apperr.Validation("merge: tenant id is required")
	case in.PrimaryLeadID == "" || in.MergedLeadID == "":
		return apperr.Validation("merge: primary and merged lead ids are required")
	case in.PrimaryLeadID == in.MergedLeadID:
		return apperr.Validation("merge: cannot merge a lead into itself")
	case in.ActorID == "":
		return apperr.Validation("merge: actor id is required")
	}
	return ValidateChoices(in.ChosenFields)
}

// ValidateChoices checks that every chosen field is a lead field and every
// choice is existing or incoming.
func ValidateChoices(chosen map[string]model.FieldChoice) error {
	for field, choice := range chosen {
		if !model.IsLeadField(field) {
			return apperr.Validation("merge: unknown field %q", field)
		}
		if !choice.Valid() {
			return apperr.Validation("merge: field %q: choice must be %q or %q, got %q",
				field, model.ChoiceExisting, model.ChoiceIncoming, choice)
		}
	}
	return nil
}

// Apply merges in.MergedLeadID into in.PrimaryLeadID inside tx. The caller
// owns the transaction, so a failure anywhere leaves nothing applied once it
// rolls back.
func Apply(ctx context.Context, tx store.Tx, in Input) (*Result, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	primary, merged, err := lockPair(ctx, tx, in.TenantID, in.PrimaryLeadID, in.MergedLeadID)
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(in.ChosenFields))
	for f := range in.ChosenFields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if in.ChosenFields[f] == model.ChoiceIncoming {
			primary.SetField(f, merged.Field(f))
		}
	}
	primary.Norm = normalize.Lead(primary)
	if err := tx.UpdateLead(ctx, primary); err != nil {
		return nil, apperr.Internal(err, "merge: update primary lead")
	}

	res := &Result{Primary: primary, Merged: merged}
	res.ActivitiesMoved, res.TasksMoved, err = tx.ReassignHistory(ctx, in.TenantID, merged.ID, primary.ID)
	if err != nil {
		return nil, apperr.Internal(err, "merge: reassign history")
	}
	if res.TombstonesRepointed, err = tx.RepointTombstones(ctx, in.TenantID, merged.ID, primary.ID); err != nil {
		return nil, apperr.Internal(err, "merge: repoint tombstones")
	}
	if err := tx.TombstoneLead(ctx, in.TenantID, merged.ID, primary.ID); err != nil {
		return nil, apperr.Internal(err, "merge: tombstone lead")
	}
	merged.MergedIntoLeadID = &primary.ID

	chosen := make(map[string]model.FieldChoice, len(in.ChosenFields))
	for f, c := range in.ChosenFields {
		chosen[f] = c
	}
	res.Log = &model.MergeLog{
		ID:            uuid.NewString(),
		TenantID:      in.TenantID,
		PrimaryLeadID: primary.ID,
		MergedLeadID:  merged.ID,
		ChosenFields:  chosen,
		Reason:        in.Reason,
		ActorID:       in.ActorID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.InsertMergeLog(ctx, res.Log); err != nil {
		return nil, apperr.Internal(err, "merge: write merge log")
	}
	return res, nil
}

// lockPair locks both leads in id order so concurrent merges over the same
// pair cannot deadlock.
func lockPair(ctx context.Context, tx store.Tx, tenantID, primaryID, mergedID string) (*model.Lead, *model.Lead, error) {
	ids := []string{primaryID, mergedID}
	sort.Strings(ids)

	locked := make(map[string]*model.Lead, 2)
	for _, id := range ids {
		l, err := tx.LockLead(ctx, tenantID, id)
		if err != nil {
			return nil, nil, apperr.Internal(err, "merge: lock lead")
		}
		if l == nil {
			return nil, nil, apperr.NotFound("lead %s not found", id)
		}
		if l.Tombstoned() {
			return nil, nil, apperr.Conflict("lead %s was already merged into %s", id, *l.MergedIntoLeadID)
		}
		locked[id] = l
	}
	return locked[primaryID], locked[mergedID], nil
}
