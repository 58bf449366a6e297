package sortedfile

import "errors"

var (
	// ErrUnreadable is returned when no encoding and dialect combination parses the data.
	ErrUnreadable = errors.New("sortedfile: unreadable table")

	// ErrTooFewColumns is returned when a table parses to a single column.
	ErrTooFewColumns = errors.New("sortedfile: fewer than two columns")

	// ErrNoColumns is returned when Write is called without columns.
	ErrNoColumns = errors.New("sortedfile: no columns to write")
)
