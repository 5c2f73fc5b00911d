// Package influxdb provides InfluxDB connectivity for the G32 bridge.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing and health monitoring.
//
// # Purpose
//
// The bridge records three measurements:
//   - g32_telemetry: zone and probe temperatures, gas, lid and light per packet
//   - g32_connection: connection state transitions per grill
//   - g32_diagnostics: API and TCP counters
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // time series are optional
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("G32A1B2C3D4", fields, receivedAt)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
