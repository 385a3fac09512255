package resilience

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/lead-import/internal/apperr"
)

// Postgres SQLSTATEs for transactions that were rolled back by the server and
// can be replayed from the start.
var retryableSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// IsRetryable reports whether err aborted a transaction without committing
// anything and a fresh attempt may succeed. Validation, not-found and
// conflict errors are never retryable; internal ones are judged by their cause.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableSQLStates[pgErr.Code]
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	// Fall back to the rendered message for causes flattened by wrapping.
	msg := strings.ToLower(err.Error())
	for code := range retryableSQLStates {
		if strings.Contains(msg, "(sqlstate "+strings.ToLower(code)+")") {
			return true
		}
	}
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize access")
}
