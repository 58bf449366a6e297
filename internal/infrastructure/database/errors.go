package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrEmptyPath is returned by Open when no store path is configured.
	ErrEmptyPath = errors.New("database: path is empty")

	// ErrInvalidTableName is returned when a table name is not a plain identifier.
	ErrInvalidTableName = errors.New("database: invalid table name")
)
