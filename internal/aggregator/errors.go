package aggregator

import "errors"

var (
	// ErrNothingToAggregate is returned when no discovered file yields a record.
	ErrNothingToAggregate = errors.New("aggregator: nothing to aggregate")

	// ErrMissingDependency is returned by New when a required dependency is nil.
	ErrMissingDependency = errors.New("aggregator: missing dependency")
)
