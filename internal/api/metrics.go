package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/store"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	Backends      BackendMetrics  `json:"backends"`
	Store         StoreMetrics    `json:"store"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// BackendMetrics reports the optional backends.
type BackendMetrics struct {
	MQTT     bool `json:"mqtt_connected"`
	InfluxDB bool `json:"influxdb_connected"`
}

// StoreMetrics summarises the comparison table.
type StoreMetrics struct {
	Records   int    `json:"records"`
	BaseTypes int    `json:"base_types"`
	LastRunID string `json:"last_run_id,omitempty"`
	LastRun   string `json:"last_run_status,omitempty"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, backend and store statistics.
// Store figures are best effort; a read failure leaves them zero.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}
	if s.events != nil {
		metrics.Backends.MQTT = s.events.IsConnected()
	}
	if s.influx != nil {
		metrics.Backends.InfluxDB = s.influx.IsConnected()
	}

	ctx := r.Context()
	if sidecars, err := s.store.Sidecars(ctx); err == nil {
		metrics.Store.BaseTypes = len(sidecars)
	}
	if rows, err := s.store.Records(ctx, store.Filter{}); err == nil {
		metrics.Store.Records = len(rows)
	}
	if runs, err := s.store.Runs(ctx, 1); err == nil && len(runs) > 0 {
		metrics.Store.LastRunID = runs[0].ID
		metrics.Store.LastRun = runs[0].Status
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
