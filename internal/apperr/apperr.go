// Package apperr classifies failures into the kinds callers map to responses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	// KindInternal covers storage and other unexpected failures. Safe to retry.
	KindInternal Kind = iota
	// KindValidation means the request was malformed. Nothing was changed.
	KindValidation
	// KindNotFound means a run, row or lead does not exist in the tenant.
	KindNotFound
	// KindConflict means the target is in a state that forbids the operation.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error carries a Kind, a caller-safe message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Invalid wraps cause as a KindValidation error.
func Invalid(cause error, msg string) error {
	return &Error{Kind: KindValidation, Msg: msg, Err: cause}
}

// Internal wraps cause as a KindInternal error.
func Internal(cause error, msg string) error {
	return &Error{Kind: KindInternal, Msg: msg, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain.
// Errors without one are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is of kind k. A nil error is never of any kind.
func Is(err error, k Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == k
}
