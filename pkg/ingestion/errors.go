package ingestion

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("ingestion: invalid configuration")
)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}

// Class tells the loop what to do with a failed record.
type Class int

const (
	// ClassTransient backs off and redelivers from the last committed offset.
	ClassTransient Class = iota
	// ClassFatal stops the loop and surfaces the error to the supervisor.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// HandlerError carries an explicit classification.
type HandlerError struct {
	Class Class
	Err   error
}

func (e *HandlerError) Error() string {
	if e.Err == nil {
		return e.Class.String()
	}
	return e.Class.String() + ": " + e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{Class: ClassTransient, Err: err}
}

func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{Class: ClassFatal, Err: err}
}

// Classify returns the class of err. Unclassified errors are transient so that a
// stuck record keeps the loop backing off instead of being dropped.
func Classify(err error) Class {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Class
	}
	if errors.Is(err, ErrInvalidConfig) {
		return ClassFatal
	}
	return ClassTransient
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
