package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist for the owner.
	ErrNotFound      = errors.New("not found")
	ErrNotConfigured = errors.New("backend not configured")
	ErrInFlight      = errors.New("operation already in progress")
	ErrUnauthorized  = errors.New("not signed in")
	ErrConflict      = errors.New("already exists")
)

// ValidationError reports a draft field that failed its constraint.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientError wraps a store or network failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// RefreshError reports a write that committed while the read that should
// have shown it failed. The write is not retried.
type RefreshError struct {
	Op  string
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.Op, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

func IsRefresh(err error) bool {
	var r *RefreshError
	return errors.As(err, &r)
}

// PartialWriteError reports a batch that stopped at entry Index; entries
// before it were stored.
type PartialWriteError struct {
	Index int
	Err   error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("stopped at entry %d: %v", e.Index, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
