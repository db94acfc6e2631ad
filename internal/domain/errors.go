package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every *ConfigurationError.
	ErrConfiguration = errors.New("configuration error")
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage error")
	// ErrExtraction matches every *ExtractionError.
	ErrExtraction = errors.New("extraction error")
	// ErrMergeInput matches every *MergeInputError.
	ErrMergeInput = errors.New("merge input error")

	ErrEntityNotFound = errors.New("entity not found")
	ErrDuplicateKey   = errors.New("duplicate key in unique entity")
	ErrNotOpen        = errors.New("port not open")
)

// ConfigurationError reports invalid configuration or arguments. It is raised
// synchronously at construction or validation time.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// StorageError reports a backend failure: unreachable engine, rejected query or malformed rows.
type StorageError struct {
	Op     string
	Entity string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NewStorageError wraps err unless it already is a StorageError.
func NewStorageError(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Entity: entity, Err: err}
}

// ExtractionError is a module-local failure on one segment.
type ExtractionError struct {
	Module    string
	SegmentID string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error: module %s on segment %s: %v", e.Module, e.SegmentID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// MergeInputError reports mismatched vector and config counts in multi-vector queries.
type MergeInputError struct {
	Vectors int
	Configs int
	Reason  string
}

func (e *MergeInputError) Error() string {
	if e.Reason != "" {
		return "merge input error: " + e.Reason
	}
	return fmt.Sprintf("merge input error: %d vectors but %d configs", e.Vectors, e.Configs)
}

func (e *MergeInputError) Is(target error) bool { return target == ErrMergeInput }
