package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrDeferred marks a record whose required parent has not been replicated yet
	ErrDeferred = errors.New("record deferred: referenced parent not replicated")
	// ErrUnknownEntityType is returned for names outside DependencyOrder
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrMissingSourceID is returned for documents without a usable _id
	ErrMissingSourceID = errors.New("source document has no _id")
	// ErrSourceNotFound is returned when a source record no longer exists
	ErrSourceNotFound = errors.New("source record not found")
	// ErrTargetRowMissing is returned when a natural-key fallback finds no row to update
	ErrTargetRowMissing = errors.New("target row not found for natural key")
)

// DeferredError describes the unresolved reference behind a deferral
type DeferredError struct {
	EntityType  EntityType
	SourceID    string
	Field       string
	RefType     EntityType
	RefSourceID string
}

func (e *DeferredError) Error() string {
	return fmt.Sprintf("%s %s deferred: %s references %s %q which is not replicated yet",
		e.EntityType, e.SourceID, e.Field, e.RefType, e.RefSourceID)
}

// Is makes errors.Is(err, ErrDeferred) match
func (e *DeferredError) Is(target error) bool {
	return target == ErrDeferred
}

// IsDeferred reports whether err is a deferral
func IsDeferred(err error) bool {
	return errors.Is(err, ErrDeferred)
}

// UniqueConflictError is a unique-constraint violation raised by the target store
type UniqueConflictError struct {
	Table      string
	Constraint string
	Cause      error
}

func (e *UniqueConflictError) Error() string {
	return fmt.Sprintf("unique constraint %q violated on %s: %v", e.Constraint, e.Table, e.Cause)
}

// PrimaryKey reports whether the violated constraint is the table's
// primary key, named <table>_pkey by PostgreSQL.
func (e *UniqueConflictError) PrimaryKey() bool {
	return e.Table != "" && e.Constraint == e.Table+"_pkey"
}

func (e *UniqueConflictError) Unwrap() error {
	return e.Cause
}

// TransformError reports a source record that cannot be mapped at all
type TransformError struct {
	EntityType EntityType
	SourceID   string
	Field      string
	Reason     string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("cannot transform %s %s: field %s %s", e.EntityType, e.SourceID, e.Field, e.Reason)
}
