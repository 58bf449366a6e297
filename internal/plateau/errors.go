package plateau

import "errors"

var (
	// ErrNoChannels is returned when a raw export has no ValueY columns.
	ErrNoChannels = errors.New("plateau: no ValueY channels")

	// ErrNoRanges is returned when no valid plateau range exists for a file.
	ErrNoRanges = errors.New("plateau: no valid plateau ranges")
)
