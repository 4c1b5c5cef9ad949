package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	// ErrVersionSpaceExhausted is returned when a geometry kind has consumed
	// every representable version token (A..Z, AA..AZ).
	ErrVersionSpaceExhausted = fmt.Errorf("version token space exhausted: %w", ErrInternal)

	ErrContainerNotFound    = fmt.Errorf("dataset container: %w", ErrNotFound)
	ErrLayerNotFound        = fmt.Errorf("layer: %w", ErrNotFound)
	ErrNoLayers             = fmt.Errorf("container has no layers: %w", ErrInvalidInput)
	ErrUnsupportedContainer = fmt.Errorf("container format: %w", ErrUnsupported)
	ErrUnsupportedArchive   = fmt.Errorf("archive format: %w", ErrUnsupported)
	ErrStoreUnavailable     = fmt.Errorf("store: %w", ErrUnavailable)
)

// ExtractionError wraps a failure while expanding one archive.
type ExtractionError struct {
	Archive string // Archive path
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Archive, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ImportError wraps a failure while importing one layer into the store.
type ImportError struct {
	Container string // Dataset container path
	Layer     string // Layer name
	Table     string // Target table
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	return fmt.Sprintf("importing layer %s of %s into %s: %v",
		e.Layer, e.Container, e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *ImportError) Unwrap() error {
	return e.Err
}

// AdmissionError wraps a failure while estimating one directory's size.
// Directories that cannot be enumerated are excluded, never silently
// admitted.
type AdmissionError struct {
	Directory string
	Err       error
}

// Error implements the error interface.
func (e *AdmissionError) Error() string {
	return fmt.Sprintf("estimating size of %s: %v", e.Directory, e.Err)
}

// Unwrap returns the underlying error.
func (e *AdmissionError) Unwrap() error {
	return e.Err
}
