// Package logging provides structured logging for ctaggregate.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
//
// # Features
//
//   - JSON output for collected logs
//   - Text output for the lab terminal
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("file processed", "file", name, "records", n)
//	logger.Warn("file skipped", "file", name, "reason", err)
//
// Never log broker passwords or InfluxDB tokens.
package logging
