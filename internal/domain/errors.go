package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrItemNotFound is returned when an item does not exist in the store
	ErrItemNotFound = errors.New("item not found")

	// ErrSchedulerStopped is returned for work submitted to, or still queued in, a stopped scheduler
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrOutcomePending marks a unit that had not resolved when its run stopped waiting
	ErrOutcomePending = errors.New("outcome still pending")
)

// StoreError wraps an I/O failure of the store for a single operation
type StoreError struct {
	Op  string
	ID  int64
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s item %d: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ValidationError reports an invalid field on the create/update path.
// Message is a complete sentence shown to API clients as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError reports whether err is, or wraps, a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
