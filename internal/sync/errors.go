package sync

import (
	"errors"
	"fmt"
)

// ErrTooManyFailures aborts a run once per-record failures cross the
// hard-error threshold.
var ErrTooManyFailures = errors.New("sync: failure threshold exceeded")

// MappingError marks a platform record that cannot be translated into a
// local draft. The record is skipped and counted as a failure; the run
// continues.
type MappingError struct {
	Entity string
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("sync: map %s: field %q %s", e.Entity, e.Field, e.Reason)
}

func mappingErr(entity, field, reason string) error {
	return &MappingError{Entity: entity, Field: field, Reason: reason}
}

// ConflictError surfaces an identity collision when a manager runs with
// strict conflict handling instead of last-write-wins.
type ConflictError struct {
	EntityType EntityType
	Key        string
	FirstID    string
	SecondID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("sync: %s key %q claimed by both platform ids %s and %s",
		e.EntityType, e.Key, e.FirstID, e.SecondID)
}
