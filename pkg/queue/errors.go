package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies input/config/payload validation failures.
	ErrValidation = errors.New("queue validation error")
	// ErrDuplicate classifies enqueue calls whose job ID is already registered.
	// Callers treating duplicates as a no-op can ignore it; Enqueue itself does.
	ErrDuplicate = errors.New("queue duplicate job")
	// ErrNotFound classifies missing logical resources (for example a lease).
	ErrNotFound = errors.New("queue not found")
	// ErrClosed classifies operations on an already closed backend.
	ErrClosed = errors.New("queue closed")
	// ErrNotInitialized classifies missing backend initialization.
	ErrNotInitialized = errors.New("queue not initialized")
)

func queueError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
