// Package mqtt provides MQTT client connectivity for the aggregation service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Store-updated and sidecar-edited events for dashboards
//   - The aggregate command queue drained by the serve worker
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
// All topics live under the configured prefix (default "ctagg"):
//
//	<prefix>/system/status          retained online/offline status
//	<prefix>/events/store_updated   retained, after every persisted run
//	<prefix>/events/sidecar_edited  after an operator edit
//	<prefix>/command/aggregate      triggers a run
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	commands, err := client.AggregateCommands()
//	if err != nil {
//	    return err
//	}
//	for cmd := range commands {
//	    agg.Run(ctx) // one run at a time, off paho's goroutine
//	}
package mqtt
