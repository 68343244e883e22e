package storage

import "errors"

// Common storage errors.
var (
	// ErrTaskNotFound is returned when a task row does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrProcessorNotFound is returned when a processor row does not exist.
	ErrProcessorNotFound = errors.New("processor not found")
	// ErrStateNotFound is returned when a cache entry is absent or expired.
	ErrStateNotFound = errors.New("state not found")
	// ErrBlobNotFound is returned when a blob URI does not resolve.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrInvalidTransition is returned when a status update would break
	// the task lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrLockHeld is returned when a dialogue lock could not be acquired
	// before the context expired.
	ErrLockHeld = errors.New("lock held")
)
