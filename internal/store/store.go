// Package store persists import runs, import rows, leads and their history.
// Every operation runs inside a transaction opened by Store.WithTx.
package store

import (
	"context"

	"github.com/sells-group/lead-import/internal/model"
)

// RowFilter selects import rows for listing. A nil Statuses matches every status.
type RowFilter struct {
	TenantID string
	RunID    string
	Statuses []model.RowStatus
	Limit    int
	Offset   int
}

// Store opens transactions against the backing database.
type Store interface {
	// WithTx runs fn in a transaction and commits when fn returns nil.
	// Transactions the database aborted as transient are replayed, so fn may
	// run more than once. fn's own errors are returned unchanged.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Migrate(ctx context.Context) error
	Close() error
}

// Tx is the transaction-scoped storage surface. Lookups by id return nil and
// no error when nothing matches in the tenant. The Lock variants additionally
// hold a row lock until the transaction ends.
type Tx interface {
	// Runs
	InsertRun(ctx context.Context, run *model.ImportRun) (bool, error)
	GetRun(ctx context.Context, tenantID, runID string) (*model.ImportRun, error)
	GetRunByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.ImportRun, error)
	LockRun(ctx context.Context, tenantID, runID string) (*model.ImportRun, error)
	UpdateRunState(ctx context.Context, run *model.ImportRun) error
	AdjustRunCounts(ctx context.Context, tenantID, runID string, delta model.RunCounts) (model.RunCounts, error)

	// Rows
	InsertRows(ctx context.Context, rows []model.ImportRow) error
	GetRow(ctx context.Context, tenantID, runID, rowID string) (*model.ImportRow, error)
	LockRow(ctx context.Context, tenantID, runID, rowID string) (*model.ImportRow, error)
	ListRows(ctx context.Context, filter RowFilter) ([]model.ImportRow, int, error)
	PendingRowIDs(ctx context.Context, tenantID, runID string) ([]string, error)
	UpdateRowOutcome(ctx context.Context, row *model.ImportRow) error

	// Leads
	InsertLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, tenantID, leadID string) (*model.Lead, error)
	LockLead(ctx context.Context, tenantID, leadID string) (*model.Lead, error)
	UpdateLead(ctx context.Context, lead *model.Lead) error
	FindLeadsByIdentity(ctx context.Context, tenantID string, norm model.Normalized) ([]model.Lead, error)
	FindLeadsByCity(ctx context.Context, tenantID, cityNorm string) ([]model.Lead, error)
	ListLeads(ctx context.Context, tenantID string, includeTombstoned bool) ([]model.Lead, error)
	TombstoneLead(ctx context.Context, tenantID, leadID, intoLeadID string) error
	RepointTombstones(ctx context.Context, tenantID, fromLeadID, toLeadID string) (int, error)

	// History
	InsertActivity(ctx context.Context, a *model.LeadActivity) error
	InsertTask(ctx context.Context, task *model.LeadTask) error
	ListActivities(ctx context.Context, tenantID, leadID string) ([]model.LeadActivity, error)
	ListTasks(ctx context.Context, tenantID, leadID string) ([]model.LeadTask, error)
	ReassignHistory(ctx context.Context, tenantID, fromLeadID, toLeadID string) (activities, tasks int, err error)

	// Merge logs
	InsertMergeLog(ctx context.Context, log *model.MergeLog) error
	ListMergeLogs(ctx context.Context, tenantID, leadID string) ([]model.MergeLog, error)
}
