package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-import/internal/model"
)

func (t *sqlTx) InsertActivity(ctx context.Context, a *model.LeadActivity) error {
	_, err := t.c.exec(ctx,
		`INSERT INTO lead_activities (id, tenant_id, lead_id, body, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.TenantID, a.LeadID, a.Body, a.ActorID, a.CreatedAt,
	)
	return eris.Wrap(err, "store: insert activity")
}

func (t *sqlTx) InsertTask(ctx context.Context, task *model.LeadTask) error {
	_, err := t.c.exec(ctx,
		`INSERT INTO lead_tasks (id, tenant_id, lead_id, title, due_at, done, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		task.ID, task.TenantID, task.LeadID, task.Title, task.DueAt, task.Done, task.CreatedAt,
	)
	return eris.Wrap(err, "store: insert task")
}

func (t *sqlTx) ListActivities(ctx context.Context, tenantID, leadID string) ([]model.LeadActivity, error) {
	it, err := t.c.query(ctx,
		`SELECT id, tenant_id, lead_id, body, actor_id, created_at
		FROM lead_activities WHERE tenant_id = $1 AND lead_id = $2 ORDER BY created_at, id`,
		tenantID, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list activities")
	}
	out, err := collect(it, func(row scannable) (*model.LeadActivity, error) {
		var a model.LeadActivity
		err := row.Scan(&a.ID, &a.TenantID, &a.LeadID, &a.Body, &a.ActorID, &a.CreatedAt)
		return &a, err
	})
	return out, eris.Wrap(err, "store: scan activities")
}

func (t *sqlTx) ListTasks(ctx context.Context, tenantID, leadID string) ([]model.LeadTask, error) {
	it, err := t.c.query(ctx,
		`SELECT id, tenant_id, lead_id, title, due_at, done, created_at
		FROM lead_tasks WHERE tenant_id = $1 AND lead_id = $2 ORDER BY created_at, id`,
		tenantID, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list tasks")
	}
	out, err := collect(it, func(row scannable) (*model.LeadTask, error) {
		var task model.LeadTask
		err := row.Scan(&task.ID, &task.TenantID, &task.LeadID, &task.Title, &task.DueAt, &task.Done, &task.CreatedAt)
		return &task, err
	})
	return out, eris.Wrap(err, "store: scan tasks")
}

// ReassignHistory moves every activity and task from one lead to another.
func (t *sqlTx) ReassignHistory(ctx context.Context, tenantID, fromLeadID, toLeadID string) (int, int, error) {
	acts, err := t.c.exec(ctx,
		`UPDATE lead_activities SET lead_id = $3 WHERE tenant_id = $1 AND lead_id = $2`,
		tenantID, fromLeadID, toLeadID)
	if err != nil {
		return 0, 0, eris.Wrap(err, "store: reassign activities")
	}
	tasks, err := t.c.exec(ctx,
		`UPDATE lead_tasks SET lead_id = $3 WHERE tenant_id = $1 AND lead_id = $2`,
		tenantID, fromLeadID, toLeadID)
	if err != nil {
		return 0, 0, eris.Wrap(err, "store: reassign tasks")
	}
	return int(acts), int(tasks), nil
}

func (t *sqlTx) InsertMergeLog(ctx context.Context, l *model.MergeLog) error {
	chosen, err := json.Marshal(l.ChosenFields)
	if err != nil {
		return eris.Wrap(err, "store: marshal chosen fields")
	}
	_, err = t.c.exec(ctx,
		`INSERT INTO merge_logs (id, tenant_id, primary_lead_id, merged_lead_id, chosen_fields, reason, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.TenantID, l.PrimaryLeadID, l.MergedLeadID, string(chosen), l.Reason, l.ActorID, l.CreatedAt,
	)
	return eris.Wrap(err, "store: insert merge log")
}

// ListMergeLogs returns the merge logs where leadID was either side, oldest first.
func (t *sqlTx) ListMergeLogs(ctx context.Context, tenantID, leadID string) ([]model.MergeLog, error) {
	it, err := t.c.query(ctx,
		`SELECT id, tenant_id, primary_lead_id, merged_lead_id, chosen_fields, reason, actor_id, created_at
		FROM merge_logs WHERE tenant_id = $1 AND (primary_lead_id = $2 OR merged_lead_id = $2)
		ORDER BY created_at, id`,
		tenantID, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list merge logs")
	}
	out, err := collect(it, func(row scannable) (*model.MergeLog, error) {
		var (
			l      model.MergeLog
			chosen []byte
		)
		if err := row.Scan(&l.ID, &l.TenantID, &l.PrimaryLeadID, &l.MergedLeadID, &chosen, &l.Reason, &l.ActorID, &l.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(chosen, &l.ChosenFields); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal chosen fields")
		}
		return &l, nil
	})
	return out, eris.Wrap(err, "store: scan merge logs")
}
