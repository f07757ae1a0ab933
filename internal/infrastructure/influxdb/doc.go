// Package influxdb records the hub's telemetry: zone and client status
// points as they change, and one summary point per grouping reconciliation
// pass. It wraps influxdb-client-go's non-blocking write API, so telemetry
// never sits on the command path; points are batched per the config
// section's batch_size and flush_interval and failures surface through the
// SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil { ... }
//	defer client.Close()
//	client.WriteZoneStatus("kitchen", "radio", 35, false, true)
//
// Telemetry is optional: when the config section is disabled the hub simply
// never constructs this client.
package influxdb
