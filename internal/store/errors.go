package store

import "errors"

var (
	// ErrNoMatchingRows is returned when an edit matches no row.
	ErrNoMatchingRows = errors.New("store: no rows match source file")

	// ErrUnknownField is returned when an edit names a field that is not configured.
	ErrUnknownField = errors.New("store: unknown sidecar field")

	// ErrInvalidField is returned when a configured sidecar field name cannot
	// be used as a column name.
	ErrInvalidField = errors.New("store: invalid sidecar field name")

	// ErrInvalidValue is returned when an edit value does not fit the field kind.
	ErrInvalidValue = errors.New("store: invalid sidecar value")

	// ErrRunNotFound is returned when finishing a run that was never started.
	ErrRunNotFound = errors.New("store: aggregation run not found")
)
