package model

import (
	"time"
)

// RunStatus represents the lifecycle state of an import run.
type RunStatus string

const (
	RunStatusPendingMapping RunStatus = "pending_mapping"
	RunStatusMapped         RunStatus = "mapped"
	RunStatusExecuting      RunStatus = "executing"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
)

// Mappable reports whether a column mapping may still be (re)set.
func (s RunStatus) Mappable() bool {
	return s == RunStatusPendingMapping || s == RunStatusMapped
}

// RowStatus represents the classification of an import row.
type RowStatus string

const (
	RowStatusPending       RowStatus = "pending"
	RowStatusCreated       RowStatus = "created"
	RowStatusHardDuplicate RowStatus = "hard_duplicate"
	RowStatusSoftDuplicate RowStatus = "soft_duplicate"
	RowStatusSkipped       RowStatus = "skipped"
	RowStatusError         RowStatus = "error"
)

// RowBucket is an outcome filter for row listings.
type RowBucket string

const (
	BucketAll     RowBucket = ""
	BucketCreated RowBucket = "created"
	BucketHard    RowBucket = "hard"
	BucketSoft    RowBucket = "soft"
	BucketErrors  RowBucket = "errors"
	BucketSkipped RowBucket = "skipped"
	BucketPending RowBucket = "pending"
)

// Statuses returns the row statuses selected by the bucket. BucketAll yields nil.
// ok is false for unknown buckets.
func (b RowBucket) Statuses() (statuses []RowStatus, ok bool) {
	switch b {
	case BucketAll:
		return nil, true
	case BucketCreated:
		return []RowStatus{RowStatusCreated}, true
	case BucketHard:
		return []RowStatus{RowStatusHardDuplicate}, true
	case BucketSoft:
		return []RowStatus{RowStatusSoftDuplicate}, true
	case BucketErrors:
		return []RowStatus{RowStatusError}, true
	case BucketSkipped:
		return []RowStatus{RowStatusSkipped}, true
	case BucketPending:
		return []RowStatus{RowStatusPending}, true
	default:
		return nil, false
	}
}

// ColumnMapping maps a lead field to the source column header supplying it.
type ColumnMapping map[string]string

// RunCounts are the aggregate row outcomes of a run. Used both as totals and
// as deltas applied when a row is finalized or resolved.
type RunCounts struct {
	Processed     int `json:"processed_rows"`
	Created       int `json:"created_count"`
	HardDuplicate int `json:"hard_duplicate_count"`
	SoftDuplicate int `json:"soft_duplicate_count"`
	Error         int `json:"error_count"`
	Skipped       int `json:"skipped_count"`
}

// Outcomes sums the per-bucket counters.
func (c RunCounts) Outcomes() int {
	return c.Created + c.HardDuplicate + c.SoftDuplicate + c.Error + c.Skipped
}

// ImportRun is one uploaded file moving through mapping and execution.
type ImportRun struct {
	ID             string        `json:"id" db:"id"`
	TenantID       string        `json:"tenant_id" db:"tenant_id"`
	UploaderID     string        `json:"uploader_id" db:"uploader_id"`
	Filename       string        `json:"filename" db:"filename"`
	IdempotencyKey *string       `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Status         RunStatus     `json:"status" db:"status"`
	Headers        []string      `json:"headers" db:"headers"`
	Mapping        ColumnMapping `json:"mapping,omitempty" db:"column_mapping"`
	TotalRows      int           `json:"total_rows" db:"total_rows"`
	Counts         RunCounts     `json:"counts"`
	FailureReason  *string       `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// Done reports whether every row has been classified.
func (r *ImportRun) Done() bool { return r.Counts.Processed >= r.TotalRows }

// Balanced reports whether the counters satisfy the run invariants.
func (r *ImportRun) Balanced() bool {
	return r.Counts.Outcomes() == r.Counts.Processed && r.Counts.Processed <= r.TotalRows
}

// HasHeader reports whether name is one of the run's source columns.
func (r *ImportRun) HasHeader(name string) bool {
	for _, h := range r.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// ImportRow is one data row of an uploaded file.
type ImportRow struct {
	ID        string `json:"id" db:"id"`
	RunID     string `json:"run_id" db:"run_id"`
	TenantID  string `json:"tenant_id" db:"tenant_id"`
	RowNumber int    `json:"row_number" db:"row_number"`

	// Raw and Norm are fixed at ingestion.
	Raw  Fields     `json:"raw" db:"raw"`
	Norm Normalized `json:"normalized" db:"normalized"`

	Status        RowStatus `json:"status" db:"status"`
	MatchedLeadID *string   `json:"matched_lead_id,omitempty" db:"matched_lead_id"`
	MatchScore    *float64  `json:"match_score,omitempty" db:"match_score"`
	ErrorMessage  *string   `json:"error_message,omitempty" db:"error_message"`

	ResolutionReason *string    `json:"resolution_reason,omitempty" db:"resolution_reason"`
	ResolvedBy       *string    `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
