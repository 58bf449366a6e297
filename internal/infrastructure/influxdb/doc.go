// Package influxdb exports comparison records to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched writes and health monitoring. Every record persisted by
// an aggregation run becomes one point of the ct_accuracy measurement, so
// dashboards can chart ratio errors over time without reading the SQLite
// store.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetAccuracyClass(cfg.Accuracy.Class)
//	err = client.Export(ctx, records, time.Now())
//
// # Error Handling
//
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
