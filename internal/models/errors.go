package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for matching with errors.Is. Every typed error below
// matches exactly one of them.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")
	ErrConflict   = errors.New("concurrent modification conflict")
)

// ValidationError reports a field that is out of bounds or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a dangling reference.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicateError reports a unique-constraint conflict such as a reused
// file reference or a sibling category with the same name. Err carries the
// storage-level cause when the conflict was detected by the database.
type DuplicateError struct {
	Entity string
	Field  string
	Value  string
	Err    error
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

func (e *DuplicateError) Unwrap() error { return e.Err }

// ConflictError reports a concurrent mutation that lost a race, typically a
// uniqueness violation surfaced by storage after the application check
// passed.
type ConflictError struct {
	Entity string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: conflicting concurrent change", e.Entity)
	}
	return fmt.Sprintf("%s: conflicting concurrent change: %v", e.Entity, e.Err)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func (e *ConflictError) Unwrap() error { return e.Err }

// NewNotFound is a shorthand for a NotFoundError with a stringer id.
func NewNotFound(entity string, id fmt.Stringer) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id.String()}
}
