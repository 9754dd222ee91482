package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when an upload does not carry a usable document.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested image is not in the output directory.
	ErrNotFound = errors.New("image not found")
	// ErrMirrorNotConfigured is returned by the mirror when credentials are missing.
	ErrMirrorNotConfigured = errors.New("mirror not configured")
)

// ProcessingError wraps a failure while storing or extracting a document.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// MirrorError wraps a failure of the remote mirror. It is logged and never
// reaches an HTTP caller.
type MirrorError struct {
	Provider string
	Err      error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror %s: %v", e.Provider, e.Err)
}

func (e *MirrorError) Unwrap() error {
	return e.Err
}

func processingErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProcessingError{Op: op, Err: err}
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
