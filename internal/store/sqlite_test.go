package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-import/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func strp(s string) *string { return &s }

func testRun(tenant string, key *string, total int) *model.ImportRun {
	ts := time.Now().UTC()
	return &model.ImportRun{
		ID:             uuid.NewString(),
		TenantID:       tenant,
		UploaderID:     "user-1",
		Filename:       "leads.csv",
		IdempotencyKey: key,
		Status:         model.RunStatusPendingMapping,
		Headers:        []string{"Company", "Email", "City"},
		TotalRows:      total,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
}

func testRows(run *model.ImportRun, n int) []model.ImportRow {
	rows := make([]model.ImportRow, n)
	for i := range rows {
		rows[i] = model.ImportRow{
			ID:        uuid.NewString(),
			RunID:     run.ID,
			TenantID:  run.TenantID,
			RowNumber: i + 1,
			Raw:       model.Fields{"Company": model.String(fmt.Sprintf("Acme %d", i+1)), "Notes": model.Null()},
			Norm:      model.Normalized{Name: strp(fmt.Sprintf("acme %d", i+1))},
			Status:    model.RowStatusPending,
			CreatedAt: run.CreatedAt,
			UpdatedAt: run.CreatedAt,
		}
	}
	return rows
}

func testLead(tenant, name, email, city string) *model.Lead {
	ts := time.Now().UTC()
	l := &model.Lead{
		ID:           uuid.NewString(),
		TenantID:     tenant,
		BusinessName: name,
		Email:        email,
		City:         city,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if email != "" {
		l.Norm.Email = strp(email)
	}
	if city != "" {
		l.Norm.City = strp(city)
	}
	l.Norm.Name = strp(name)
	return l
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	run := testRun("t1", strp("key-1"), 3)

	err := st.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.InsertRun(ctx, run)
		require.NoError(t, err)
		assert.True(t, ok)
		return tx.InsertRows(ctx, testRows(run, 3))
	})
	require.NoError(t, err)

	err = st.WithTx(ctx, func(tx Tx) error {
		got, err := tx.GetRun(ctx, "t1", run.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, []string{"Company", "Email", "City"}, got.Headers)
		assert.Nil(t, got.Mapping)
		assert.Equal(t, "key-1", *got.IdempotencyKey)
		assert.Equal(t, 3, got.TotalRows)

		byKey, err := tx.GetRunByIdempotencyKey(ctx, "t1", "key-1")
		require.NoError(t, err)
		require.NotNil(t, byKey)
		assert.Equal(t, run.ID, byKey.ID)

		other, err := tx.GetRun(ctx, "t2", run.ID)
		require.NoError(t, err)
		assert.Nil(t, other)

		locked, err := tx.LockRun(ctx, "t1", run.ID)
		require.NoError(t, err)
		locked.Status = model.RunStatusMapped
		locked.Mapping = model.ColumnMapping{model.FieldBusinessName: "Company"}
		require.NoError(t, tx.UpdateRunState(ctx, locked))

		counts, err := tx.AdjustRunCounts(ctx, "t1", run.ID, model.RunCounts{Processed: 2, Created: 1, Error: 1})
		require.NoError(t, err)
		assert.Equal(t, model.RunCounts{Processed: 2, Created: 1, Error: 1}, counts)
		return nil
	})
	require.NoError(t, err)

	err = st.WithTx(ctx, func(tx Tx) error {
		got, err := tx.GetRun(ctx, "t1", run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusMapped, got.Status)
		assert.Equal(t, "Company", got.Mapping[model.FieldBusinessName])
		assert.Equal(t, 2, got.Counts.Processed)
		assert.True(t, got.Balanced())
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_InsertRun_KeyConflict(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testRun("t1", strp("same"), 1)
	second := testRun("t1", strp("same"), 1)
	otherTenant := testRun("t2", strp("same"), 1)
	noKeyA := testRun("t1", nil, 1)
	noKeyB := testRun("t1", nil, 1)

	err := st.WithTx(ctx, func(tx Tx) error {
		for _, tc := range []struct {
			run  *model.ImportRun
			want bool
		}{
			{first, true},
			{second, false},
			{otherTenant, true},
			{noKeyA, true},
			{noKeyB, true},
		} {
			ok, err := tx.InsertRun(ctx, tc.run)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok, tc.run.ID)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_AdjustRunCounts_RejectsImbalance(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	run := testRun("t1", nil, 1)

	require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
		_, err := tx.InsertRun(ctx, run)
		return err
	}))

	err := st.WithTx(ctx, func(tx Tx) error {
		_, err := tx.AdjustRunCounts(ctx, "t1", run.ID, model.RunCounts{Processed: 2, Created: 2})
		return err
	})
	assert.Error(t, err)
}

func TestSQLite_ListRowsAndPending(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	run := testRun("t1", nil, 5)
	rows := testRows(run, 5)

	require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertRun(ctx, run); err != nil {
			return err
		}
		return tx.InsertRows(ctx, rows)
	}))

	err := st.WithTx(ctx, func(tx Tx) error {
		row, err := tx.LockRow(ctx, "t1", run.ID, rows[1].ID)
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, "Acme 2", row.Raw.Text("Company"))
		assert.True(t, row.Raw.Get("Notes").IsNull())
		assert.Equal(t, "acme 2", *row.Norm.Name)

		row.Status = model.RowStatusSoftDuplicate
		row.MatchedLeadID = strp("lead-x")
		score := 0.93
		row.MatchScore = &score
		require.NoError(t, tx.UpdateRowOutcome(ctx, row))

		row3, err := tx.GetRow(ctx, "t1", run.ID, rows[2].ID)
		require.NoError(t, err)
		row3.Status = model.RowStatusError
		row3.ErrorMessage = strp("business_name is required")
		return tx.UpdateRowOutcome(ctx, row3)
	})
	require.NoError(t, err)

	err = st.WithTx(ctx, func(tx Tx) error {
		ids, err := tx.PendingRowIDs(ctx, "t1", run.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{rows[0].ID, rows[3].ID, rows[4].ID}, ids)

		all, total, err := tx.ListRows(ctx, RowFilter{TenantID: "t1", RunID: run.ID, Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, all, 2)
		assert.Equal(t, 3, all[0].RowNumber)
		assert.Equal(t, 4, all[1].RowNumber)

		soft, total, err := tx.ListRows(ctx, RowFilter{
			TenantID: "t1", RunID: run.ID, Statuses: []model.RowStatus{model.RowStatusSoftDuplicate}, Limit: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, soft, 1)
		assert.InDelta(t, 0.93, *soft[0].MatchScore, 1e-9)
		assert.Equal(t, "lead-x", *soft[0].MatchedLeadID)

		mixed, total, err := tx.ListRows(ctx, RowFilter{
			TenantID: "t1", RunID: run.ID,
			Statuses: []model.RowStatus{model.RowStatusError, model.RowStatusSoftDuplicate},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, mixed, 2)

		none, total, err := tx.ListRows(ctx, RowFilter{TenantID: "t2", RunID: run.ID, Limit: 10})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_LeadLookups(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testLead("t1", "acme", "a@acme.com", "austin")
	b := testLead("t1", "acme services", "", "austin")
	c := testLead("t1", "globex", "g@globex.com", "dallas")
	foreign := testLead("t2", "acme", "a@acme.com", "austin")

	require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
		for _, l := range []*model.Lead{a, b, c, foreign} {
			if err := tx.InsertLead(ctx, l); err != nil {
				return err
			}
		}
		return nil
	}))

	err := st.WithTx(ctx, func(tx Tx) error {
		byEmail, err := tx.FindLeadsByIdentity(ctx, "t1", model.Normalized{Email: strp("a@acme.com")})
		require.NoError(t, err)
		require.Len(t, byEmail, 1)
		assert.Equal(t, a.ID, byEmail[0].ID)

		none, err := tx.FindLeadsByIdentity(ctx, "t1", model.Normalized{Name: strp("acme")})
		require.NoError(t, err)
		assert.Empty(t, none)

		inAustin, err := tx.FindLeadsByCity(ctx, "t1", "austin")
		require.NoError(t, err)
		require.Len(t, inAustin, 2)
		assert.Equal(t, a.ID, inAustin[0].ID)

		require.NoError(t, tx.TombstoneLead(ctx, "t1", b.ID, a.ID))
		assert.Error(t, tx.TombstoneLead(ctx, "t1", b.ID, c.ID), "already tombstoned")

		inAustin, err = tx.FindLeadsByCity(ctx, "t1", "austin")
		require.NoError(t, err)
		assert.Len(t, inAustin, 1)

		active, err := tx.ListLeads(ctx, "t1", false)
		require.NoError(t, err)
		assert.Len(t, active, 2)
		everything, err := tx.ListLeads(ctx, "t1", true)
		require.NoError(t, err)
		assert.Len(t, everything, 3)

		gone, err := tx.GetLead(ctx, "t1", b.ID)
		require.NoError(t, err)
		require.NotNil(t, gone)
		assert.Equal(t, a.ID, *gone.MergedIntoLeadID)

		n, err := tx.RepointTombstones(ctx, "t1", a.ID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		locked, err := tx.LockLead(ctx, "t1", a.ID)
		require.NoError(t, err)
		locked.Phone = "555-111-2222"
		locked.Norm.Phone = strp("5551112222")
		locked.Archived = true
		require.NoError(t, tx.UpdateLead(ctx, locked))

		got, err := tx.GetLead(ctx, "t1", a.ID)
		require.NoError(t, err)
		assert.True(t, got.Archived)
		assert.Equal(t, "5551112222", *got.Norm.Phone)
		assert.Nil(t, got.Norm.Domain)

		missing, err := tx.GetLead(ctx, "t2", a.ID)
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_HistoryAndMergeLogs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	primary := testLead("t1", "acme", "", "austin")
	merged := testLead("t1", "acme co", "", "austin")
	due := time.Now().UTC().Add(48 * time.Hour)

	err := st.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertLead(ctx, primary))
		require.NoError(t, tx.InsertLead(ctx, merged))
		require.NoError(t, tx.InsertActivity(ctx, &model.LeadActivity{
			ID: uuid.NewString(), TenantID: "t1", LeadID: merged.ID, Body: "called", ActorID: "u1", CreatedAt: time.Now().UTC(),
		}))
		require.NoError(t, tx.InsertTask(ctx, &model.LeadTask{
			ID: uuid.NewString(), TenantID: "t1", LeadID: merged.ID, Title: "follow up", DueAt: &due, CreatedAt: time.Now().UTC(),
		}))

		acts, tasks, err := tx.ReassignHistory(ctx, "t1", merged.ID, primary.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, acts)
		assert.Equal(t, 1, tasks)

		return tx.InsertMergeLog(ctx, &model.MergeLog{
			ID: uuid.NewString(), TenantID: "t1", PrimaryLeadID: primary.ID, MergedLeadID: merged.ID,
			ChosenFields: map[string]model.FieldChoice{model.FieldEmail: model.ChoiceIncoming},
			Reason:       strp("same business"), ActorID: "u1", CreatedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	err = st.WithTx(ctx, func(tx Tx) error {
		acts, err := tx.ListActivities(ctx, "t1", primary.ID)
		require.NoError(t, err)
		require.Len(t, acts, 1)
		assert.Equal(t, "called", acts[0].Body)

		tasks, err := tx.ListTasks(ctx, "t1", primary.ID)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		require.NotNil(t, tasks[0].DueAt)
		assert.WithinDuration(t, due, *tasks[0].DueAt, time.Second)

		logs, err := tx.ListMergeLogs(ctx, "t1", merged.ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, model.ChoiceIncoming, logs[0].ChosenFields[model.FieldEmail])
		assert.Equal(t, "same business", *logs[0].Reason)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_WithTx_RollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	run := testRun("t1", nil, 1)

	boom := fmt.Errorf("boom")
	err := st.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertRun(ctx, run); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
		got, err := tx.GetRun(ctx, "t1", run.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	}))
}

func TestSQLite_ConcurrentTransactions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	run := testRun("t1", nil, 20)
	require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
		_, err := tx.InsertRun(ctx, run)
		return err
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.WithTx(ctx, func(tx Tx) error {
				_, err := tx.AdjustRunCounts(ctx, "t1", run.ID, model.RunCounts{Processed: 1, Created: 1})
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
		got, err := tx.GetRun(ctx, "t1", run.ID)
		require.NoError(t, err)
		assert.Equal(t, 20, got.Counts.Created)
		return nil
	}))
}
