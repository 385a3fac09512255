package merge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-import/internal/apperr"
	"github.com/sells-group/lead-import/internal/model"
	"github.com/sells-group/lead-import/internal/normalize"
	"github.com/sells-group/lead-import/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "merge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newLead(tenant, name, email, phone, city string) *model.Lead {
	ts := time.Now().UTC()
	l := &model.Lead{
		ID:           uuid.NewString(),
		TenantID:     tenant,
		BusinessName: name,
		Email:        email,
		Phone:        phone,
		City:         city,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	l.Norm = normalize.Lead(l)
	return l
}

func seed(t *testing.T, st store.Store, leads ...*model.Lead) {
	t.Helper()
	require.NoError(t, st.WithTx(context.Background(), func(tx store.Tx) error {
		for _, l := range leads {
			if err := tx.InsertLead(context.Background(), l); err != nil {
				return err
			}
		}
		return nil
	}))
}

func getLead(t *testing.T, st store.Store, tenant, id string) *model.Lead {
	t.Helper()
	var l *model.Lead
	require.NoError(t, st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		l, err = tx.GetLead(context.Background(), tenant, id)
		return err
	}))
	return l
}

func TestMergeLeadRecords(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	primary := newLead("t1", "Acme LLC", "sales@acme.com", "", "Austin")
	merged := newLead("t1", "Acme Co", "owner@acme.com", "+1 (555) 111-2222", "Austin")
	older := newLead("t1", "Acme Services", "", "", "Austin")
	older.MergedIntoLeadID = &merged.ID
	seed(t, st, primary, merged, older)

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertActivity(ctx, &model.LeadActivity{
			ID: uuid.NewString(), TenantID: "t1", LeadID: merged.ID, Body: "left voicemail", CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return tx.InsertTask(ctx, &model.LeadTask{
			ID: uuid.NewString(), TenantID: "t1", LeadID: merged.ID, Title: "send quote", CreatedAt: time.Now().UTC(),
		})
	}))

	reason := "same storefront"
	res, err := NewEngine(st).MergeLeadRecords(ctx, Input{
		TenantID:      "t1",
		PrimaryLeadID: primary.ID,
		MergedLeadID:  merged.ID,
		ChosenFields: map[string]model.FieldChoice{
			model.FieldEmail:        model.ChoiceIncoming,
			model.FieldPhone:        model.ChoiceIncoming,
			model.FieldBusinessName: model.ChoiceExisting,
		},
		Reason:  &reason,
		ActorID: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ActivitiesMoved)
	assert.Equal(t, 1, res.TasksMoved)
	assert.Equal(t, 1, res.TombstonesRepointed)

	got := getLead(t, st, "t1", primary.ID)
	require.NotNil(t, got)
	assert.Equal(t, "Acme LLC", got.BusinessName)
	assert.Equal(t, "owner@acme.com", got.Email)
	assert.Equal(t, "+1 (555) 111-2222", got.Phone)
	assert.Equal(t, "owner@acme.com", *got.Norm.Email)
	assert.Equal(t, "5551112222", *got.Norm.Phone)
	assert.Nil(t, got.MergedIntoLeadID)

	gone := getLead(t, st, "t1", merged.ID)
	require.NotNil(t, gone, "merged-away lead stays retrievable by id")
	require.NotNil(t, gone.MergedIntoLeadID)
	assert.Equal(t, primary.ID, *gone.MergedIntoLeadID)

	chained := getLead(t, st, "t1", older.ID)
	require.NotNil(t, chained.MergedIntoLeadID)
	assert.Equal(t, primary.ID, *chained.MergedIntoLeadID)

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		active, err := tx.ListLeads(ctx, "t1", false)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, primary.ID, active[0].ID)

		acts, err := tx.ListActivities(ctx, "t1", primary.ID)
		require.NoError(t, err)
		assert.Len(t, acts, 1)
		tasks, err := tx.ListTasks(ctx, "t1", primary.ID)
		require.NoError(t, err)
		assert.Len(t, tasks, 1)

		logs, err := tx.ListMergeLogs(ctx, "t1", primary.ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, merged.ID, logs[0].MergedLeadID)
		assert.Equal(t, "u1", logs[0].ActorID)
		assert.Equal(t, model.ChoiceIncoming, logs[0].ChosenFields[model.FieldEmail])
		assert.Equal(t, reason, *logs[0].Reason)
		return nil
	}))
}

func TestMergeLeadRecords_AbsentFieldsKeepPrimary(t *testing.T) {
	st := newTestStore(t)
	primary := newLead("t1", "Globex", "hq@globex.com", "", "Springfield")
	merged := newLead("t1", "Globex Corp", "info@globex.com", "5552221111", "Springfield")
	seed(t, st, primary, merged)

	res, err := NewEngine(st).MergeLeadRecords(context.Background(), Input{
		TenantID: "t1", PrimaryLeadID: primary.ID, MergedLeadID: merged.ID, ActorID: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "hq@globex.com", res.Primary.Email)
	assert.Empty(t, res.Primary.Phone)
	assert.Empty(t, res.Log.ChosenFields)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := Input{TenantID: "t1", PrimaryLeadID: "a", MergedLeadID: "b", ActorID: "u1"}
	tests := []struct {
		name   string
		mutate func(*Input)
		want   string
	}{
		{"missing tenant", func(in *Input) { in.TenantID = "" }, "tenant id"},
		{"missing merged id", func(in *Input) { in.MergedLeadID = "" }, "lead ids are required"},
		{"self merge", func(in *Input) { in.MergedLeadID = "a" }, "into itself"},
		{"missing actor", func(in *Input) { in.ActorID = "" }, "actor id"},
		{"unknown field", func(in *Input) {
			in.ChosenFields = map[string]model.FieldChoice{"favorite_color": model.ChoiceIncoming}
		}, "unknown field"},
		{"bad choice", func(in *Input) {
			in.ChosenFields = map[string]model.FieldChoice{model.FieldEmail: "both"}
		}, "choice must be"},
	}

	require.NoError(t, Validate(base))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			err := Validate(in)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMergeLeadRecords_MissingLead(t *testing.T) {
	st := newTestStore(t)
	primary := newLead("t1", "Initech", "", "", "Austin")
	seed(t, st, primary)

	_, err := NewEngine(st).MergeLeadRecords(context.Background(), Input{
		TenantID: "t1", PrimaryLeadID: primary.ID, MergedLeadID: uuid.NewString(), ActorID: "u1",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// Leads in another tenant are invisible.
	other := newLead("t2", "Initech", "", "", "Austin")
	seed(t, st, other)
	_, err = NewEngine(st).MergeLeadRecords(context.Background(), Input{
		TenantID: "t1", PrimaryLeadID: primary.ID, MergedLeadID: other.ID, ActorID: "u1",
	})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMergeLeadRecords_AlreadyMerged(t *testing.T) {
	st := newTestStore(t)
	primary := newLead("t1", "Hooli", "", "", "Palo Alto")
	merged := newLead("t1", "Hooli Inc", "", "", "Palo Alto")
	seed(t, st, primary, merged)

	e := NewEngine(st)
	in := Input{TenantID: "t1", PrimaryLeadID: primary.ID, MergedLeadID: merged.ID, ActorID: "u1"}
	_, err := e.MergeLeadRecords(context.Background(), in)
	require.NoError(t, err)

	_, err = e.MergeLeadRecords(context.Background(), in)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// The tombstone cannot become a primary either.
	_, err = e.MergeLeadRecords(context.Background(), Input{
		TenantID: "t1", PrimaryLeadID: merged.ID, MergedLeadID: primary.ID, ActorID: "u1",
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestApply_RollsBackWithCaller(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	primary := newLead("t1", "Umbrella", "a@umbrella.com", "", "Raccoon City")
	merged := newLead("t1", "Umbrella Corp", "b@umbrella.com", "", "Raccoon City")
	seed(t, st, primary, merged)

	boom := errors.New("caller failed after merge")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		_, err := Apply(ctx, tx, Input{
			TenantID: "t1", PrimaryLeadID: primary.ID, MergedLeadID: merged.ID, ActorID: "u1",
			ChosenFields: map[string]model.FieldChoice{model.FieldEmail: model.ChoiceIncoming},
		})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, "a@umbrella.com", getLead(t, st, "t1", primary.ID).Email)
	assert.Nil(t, getLead(t, st, "t1", merged.ID).MergedIntoLeadID)
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		logs, err := tx.ListMergeLogs(ctx, "t1", primary.ID)
		require.NoError(t, err)
		assert.Empty(t, logs)
		return nil
	}))
}
