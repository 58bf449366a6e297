package measurement

import "errors"

// Domain errors for the measurement package.
var (
	// ErrNoValueColumns is returned when a header row has no current value columns.
	ErrNoValueColumns = errors.New("measurement: no current value columns")

	// ErrNoDevices is returned when a reference is requested from an empty device set.
	ErrNoDevices = errors.New("measurement: no devices")

	// ErrUnknownDevice is returned when the reference is not part of the channel group.
	ErrUnknownDevice = errors.New("measurement: device not in channel group")
)
