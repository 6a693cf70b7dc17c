// Package errors provides error handling for the provenance engine.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// On top of the re-exports it defines the engine's failure taxonomy as sentinel
// errors. Callers branch on them with errors.Is:
//
//	id, err := log.RecordDecision(ctx, req)
//	if errors.IsConflictError(err) {
//	    // re-read the active decision and retry
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// AssertionFailedf reports a broken internal assumption.
var AssertionFailedf = crdb.AssertionFailedf

// Failure taxonomy. Wrap these with Wrap/Newf helpers below to add context while
// preserving the category for errors.Is checks.
var (
	// ErrValidation rejects a single record: a required field is missing or a
	// referenced run/claim does not exist. Batches tally it and continue.
	ErrValidation = New("validation failed")

	// ErrConflict signals a stale optimistic-concurrency pointer or a duplicate key.
	// The caller re-reads and retries; it is never resolved automatically.
	ErrConflict = New("conflict")

	// ErrCycle refuses a supersession that would make a chain cyclic.
	ErrCycle = New("supersession cycle")

	// ErrIntegrityViolation covers evidence target arity and corrupted audit chains.
	// It is logged as a data-integrity alert and never silently repaired.
	ErrIntegrityViolation = New("integrity violation")

	// ErrDedupAmbiguous is a routed outcome rather than a failure: the record was
	// staged for manual review.
	ErrDedupAmbiguous = New("deduplication ambiguous")

	// ErrDecisionRequired means the algorithm declines to pick (e.g. two full
	// editions from the same year) and a recorded Decision must settle it.
	ErrDecisionRequired = New("decision required")

	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = New("not found")
)

// NewValidationError creates a validation error with a formatted message
func NewValidationError(format string, args ...interface{}) error {
	return Wrapf(ErrValidation, format, args...)
}

// NewConflictError creates a conflict error with a formatted message
func NewConflictError(format string, args ...interface{}) error {
	return Wrapf(ErrConflict, format, args...)
}

// NewCycleError creates a cycle error with a formatted message
func NewCycleError(format string, args ...interface{}) error {
	return Wrapf(ErrCycle, format, args...)
}

// NewIntegrityViolation creates an integrity error with a formatted message
func NewIntegrityViolation(format string, args ...interface{}) error {
	return Wrapf(ErrIntegrityViolation, format, args...)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewDecisionRequiredError creates a decision-required error with a formatted message
func NewDecisionRequiredError(format string, args ...interface{}) error {
	return Wrapf(ErrDecisionRequired, format, args...)
}

// IsValidationError checks if an error is or wraps ErrValidation
func IsValidationError(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// IsConflictError checks if an error is or wraps ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsCycleError checks if an error is or wraps ErrCycle
func IsCycleError(err error) bool {
	return err != nil && Is(err, ErrCycle)
}

// IsIntegrityViolation checks if an error is or wraps ErrIntegrityViolation
func IsIntegrityViolation(err error) bool {
	return err != nil && Is(err, ErrIntegrityViolation)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsDecisionRequired checks if an error is or wraps ErrDecisionRequired
func IsDecisionRequired(err error) bool {
	return err != nil && Is(err, ErrDecisionRequired)
}

// Category returns a short label for the taxonomy bucket an error falls in.
// Used as a metrics label and in batch error reports.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidationError(err):
		return "validation"
	case IsConflictError(err):
		return "conflict"
	case IsCycleError(err):
		return "cycle"
	case IsIntegrityViolation(err):
		return "integrity"
	case Is(err, ErrDedupAmbiguous):
		return "dedup_ambiguous"
	case IsDecisionRequired(err):
		return "decision_required"
	case IsNotFoundError(err):
		return "not_found"
	default:
		return "internal"
	}
}
