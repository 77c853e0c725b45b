package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSlotTaken means another invocation already filled the schedule slot.
	ErrSlotTaken = errors.New("schedule slot already filled")
	// ErrStateConflict means a guarded update found the row in an unexpected state.
	ErrStateConflict = errors.New("state conflict")
)
