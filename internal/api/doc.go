// Package api implements the HTTP REST API and WebSocket server of ctaggregate.
//
// This package provides:
//   - read endpoints for comparison records (optionally evaluated against an
//     accuracy class), sidecar values and the aggregation run history
//   - the operator edit path for sidecar values
//   - an aggregation trigger
//   - a WebSocket hub pushing store.updated and sidecar.edited events
//   - middleware (request ID, logging, recovery, CORS, body size limit)
//
// # Graceful Degradation
//
// MQTT and InfluxDB are optional. Without MQTT, sidecar edits are still
// persisted and pushed over WebSocket; only the bus event is skipped.
// GET /health reports a failing broker or InfluxDB as "degraded" and a
// failing database as "unhealthy" (503).
//
// # WebSocket
//
// GET /ws?channels=store.updated,sidecar.edited is push only. The channel
// list is fixed at connect time and defaults to both; the first frame is a
// "connected" event echoing it.
//
// The API has no authentication. It is meant for the lab network only.
package api
