// Error taxonomy for strata.
//
// Every failure surfaced to a caller carries a stable machine-readable
// kind plus human-readable context. Callers classify with
// errors.Is(err, ErrXxx); the original cause stays in the chain for
// errors.As inspection.
package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for failure classification.
var (
	// Resolution-time failures. Fatal to the run; no filesystem mutation
	// has occurred when these surface.

	// ErrUnknownBoard indicates the board id has no registered support
	// package.
	ErrUnknownBoard = errors.New("unknown board")

	// ErrUnresolvableConstraint indicates no known artifact satisfies a
	// version constraint.
	ErrUnresolvableConstraint = errors.New("unresolvable constraint")

	// ErrOverlayConflict indicates two overlays declare conflicting
	// filesystem operations on the same path.
	ErrOverlayConflict = errors.New("overlay conflict")

	// ErrUnknownField indicates the project spec contains a field this
	// version does not recognize. Rejected rather than ignored so typos
	// surface before they cause silent misconfiguration.
	ErrUnknownField = errors.New("unknown field")

	// Artifact-acquisition failures. Retryable with backoff up to a
	// bounded attempt count, then surfaced as fatal.

	// ErrChecksumMismatch indicates downloaded content disagrees with
	// the declared checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrFetchTimeout indicates a network fetch exceeded its deadline.
	ErrFetchTimeout = errors.New("fetch timed out")

	// ErrFetchFailed indicates a network fetch failed for any other
	// reason (connection refused, HTTP error status, DNS).
	ErrFetchFailed = errors.New("fetch failed")

	// Environment-level failures.

	// ErrWorkspaceBusy indicates another invocation holds the workspace
	// lock.
	ErrWorkspaceBusy = errors.New("workspace busy")

	// ErrStateCorrupt indicates the persisted workspace state could not
	// be read. Degrades to an unverified scan rather than aborting.
	ErrStateCorrupt = errors.New("workspace state corrupt")
)

// Error wraps an underlying error with strata classification.
type Error struct {
	// Kind is the sentinel for classification (e.g. ErrUnknownBoard).
	Kind error
	// Op is the operation that failed (e.g. "resolve", "fetch", "link").
	Op string
	// Field is the spec field or path involved, if any.
	Field string
	// Err is the underlying cause, may be nil.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Field, e.Kind, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Field, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying error for chain traversal.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool { return errors.Is(e.Kind, target) }

// NewError creates a classified error.
func NewError(kind error, op, field string, err error) *Error {
	return &Error{Kind: kind, Op: op, Field: field, Err: err}
}

// Retryable reports whether the error is an artifact-acquisition failure
// eligible for bounded retry with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrFetchTimeout) ||
		errors.Is(err, ErrFetchFailed)
}
