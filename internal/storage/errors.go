package storage

import "errors"

var (
	// ErrNotFound is returned by CurrentSeverity when no correlated alert exists.
	ErrNotFound = errors.New("alert not found")
	// ErrInvalidDocument is returned when an alert fails validation on insert.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrAlreadyExists is returned when an alert id is already stored.
	ErrAlreadyExists = errors.New("already exists")
	// ErrEmptyPrefix guards prefix-addressed bulk operations.
	ErrEmptyPrefix = errors.New("empty prefix")
)
