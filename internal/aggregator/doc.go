// Package aggregator runs the aggregation pipeline over a directory of sorted
// measurement files.
//
// A run discovers every file carrying the sorted suffix, analyses the files
// in parallel (one goroutine per file, bounded by the configured
// concurrency), concatenates the per-file records in path order and hands
// them to the store, which merges them with the prior table under its own
// lock. Per-file problems are logged and skipped; only a run that finds no
// records at all fails, with ErrNothingToAggregate.
//
// After a successful merge the run is announced on MQTT and exported to
// InfluxDB when those are configured. Neither can fail a run.
package aggregator
