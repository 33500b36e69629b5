package domain

import "github.com/go-faster/errors"

var (
	// ErrInvariantViolation marks malformed input. Never retried.
	ErrInvariantViolation = errors.New("identity invariant violation")
	// ErrNotFound means the person directory does not know the id.
	ErrNotFound = errors.New("person not found in directory")
	// ErrTransient covers directory or store unavailability.
	ErrTransient = errors.New("transient failure")

	ErrPersonNotFound = errors.New("person not found")
)
