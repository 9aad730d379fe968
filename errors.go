package paker

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Kind classifies a failure into a small, stable taxonomy. Kind is never
// used for control flow beyond routing and reporting; callers switch on it,
// they do not string-match error text.
type Kind int

const (
	// KindUnknown is the zero value; it should never appear in a returned
	// *Error.
	KindUnknown Kind = iota
	// KindIO covers filesystem or network operations that did not complete.
	KindIO
	// KindNotFound covers a named entity that does not exist.
	KindNotFound
	// KindConstraintUnsatisfiable covers a set of version constraints with
	// no satisfying version.
	KindConstraintUnsatisfiable
	// KindCycle covers a directed cycle detected in the dependency graph.
	KindCycle
	// KindIntegrity covers a cache entry or snapshot that failed
	// verification.
	KindIntegrity
	// KindConflict covers version requirements that cannot be reconciled.
	KindConflict
	// KindAlreadyExists covers a creation that would overwrite an existing
	// entity without force.
	KindAlreadyExists
	// KindCancelled covers an operation cancelled before completion.
	KindCancelled
	// KindPermission covers a target location that is not writable.
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io failure"
	case KindNotFound:
		return "not found"
	case KindConstraintUnsatisfiable:
		return "constraint unsatisfiable"
	case KindCycle:
		return "cycle detected"
	case KindIntegrity:
		return "integrity failure"
	case KindConflict:
		return "conflict"
	case KindAlreadyExists:
		return "already present"
	case KindCancelled:
		return "cancelled"
	case KindPermission:
		return "permission denied"
	default:
		return "unknown"
	}
}

// Error is the structured failure every core operation returns. Op names the
// operation that failed (e.g. "cache.Install"); Err, if set, is the
// underlying cause and is reachable through errors.Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf constructs an *Error, wrapping err (which may be nil) with
// xerrors.Errorf so the resulting error carries a stack frame.
func Errorf(kind Kind, op string, format string, args ...interface{}) *Error {
	var err error
	if format != "" {
		err = xerrors.Errorf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap annotates err with op/kind without losing the original error in the
// unwrap chain.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, otherwise
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
