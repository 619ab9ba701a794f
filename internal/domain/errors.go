package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("no access to organization")
	ErrNotFound        = errors.New("resource not found")
)

// ErrorKind is the coarse category of a failure, used to pick a response.
type ErrorKind string

const (
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindForbidden       ErrorKind = "forbidden"
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindGuardRejected   ErrorKind = "guard_rejected"
	KindConflict        ErrorKind = "conflict"
	KindTransient       ErrorKind = "transient"
	KindInternal        ErrorKind = "internal"
)

// ValidationError is returned for malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError identifies a missing resource. It matches ErrNotFound.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransitionError is returned when a status transition is not allowed.
type TransitionError struct {
	Kind    Kind
	Current Status
	Target  Status
	// NoOp is set when the resource is already in the target status.
	NoOp bool
	// Reason is set when an enumerated transition was refused by its guard.
	Reason string
}

func (e *TransitionError) Error() string {
	switch {
	case e.NoOp:
		return fmt.Sprintf("%s is already in status %q", e.Kind, e.Current)
	case e.Reason != "":
		return e.Reason
	default:
		return fmt.Sprintf("%s cannot move from %q to %q", e.Kind, e.Current, e.Target)
	}
}

// ConflictError is returned when a concurrent writer won a race or a
// uniqueness constraint was violated.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// TransientError wraps a store failure that is safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "temporarily unavailable: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Classify maps an error onto the failure taxonomy.
func Classify(err error) ErrorKind {
	var (
		validationErr *ValidationError
		transitionErr *TransitionError
		conflictErr   *ConflictError
		transientErr  *TransientError
	)
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &transitionErr):
		return KindGuardRejected
	case errors.As(err, &conflictErr):
		return KindConflict
	case errors.As(err, &transientErr), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindInternal
	}
}
