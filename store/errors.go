package store

import (
	"errors"
	"fmt"
)

var (
	// ErrParentNotFound is returned when a parent or guard condition check fails.
	ErrParentNotFound = errors.New("store: parent entity not found")

	// ErrNotFound is returned when an entity doesn't exist.
	ErrNotFound = errors.New("store: entity not found")

	// ErrAlreadyExists is returned when attempting to create an entity with an existing key.
	ErrAlreadyExists = errors.New("store: entity already exists")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("store: entity was modified concurrently")

	// ErrTooManyItems is returned when a transaction would exceed MaxTransactItems.
	ErrTooManyItems = errors.New("store: too many items in transaction")

	// ErrTransactionConflict is returned when a transaction was cancelled
	// because another transaction held one of its rows. Nothing was written
	// and the caller may retry.
	ErrTransactionConflict = errors.New("store: transaction conflict")
)

// ConditionFailedError reports which items of a cancelled transaction failed
// their condition. Indexes are relative to the slices passed by the caller.
type ConditionFailedError struct {
	// Checks holds indexes into the condition checks that failed.
	Checks []int

	// Updates holds indexes into the writes that failed.
	Updates []int
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("store: transaction condition failed (checks=%v updates=%v)", e.Checks, e.Updates)
}

// Unwrap maps the failure onto a sentinel. A failed guard check takes
// precedence over a failed write.
func (e *ConditionFailedError) Unwrap() error {
	if len(e.Checks) > 0 {
		return ErrParentNotFound
	}
	return ErrConcurrentModification
}
