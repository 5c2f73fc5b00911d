package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementTelemetry   = "g32_telemetry"
	MeasurementConnection  = "g32_connection"
	MeasurementDiagnostics = "g32_diagnostics"
)

// WriteTelemetry writes one decoded grill packet.
//
// Fields are whatever the caller could decode; channels without a valid
// reading should simply be left out. A packet with no fields is dropped
// because InfluxDB rejects empty points.
//
// Parameters:
//   - serial: Grill serial, stored as the "serial" tag
//   - fields: Decoded values (e.g., "zone_1": 214.5, "lid_open": false)
//   - timestamp: When the packet was received
//
// Example:
//
//	client.WriteTelemetry("G32A1B2C3D4", map[string]interface{}{"zone_1": 214.5}, t.ReceivedAt)
func (c *Client) WriteTelemetry(serial string, fields map[string]interface{}, timestamp time.Time) {
	if len(fields) == 0 {
		return
	}
	c.writePoint(MeasurementTelemetry, map[string]string{"serial": serial}, fields, timestamp)
}

// WriteConnectionState records a connection state transition.
//
// Parameters:
//   - serial: Grill serial
//   - state: New state (e.g., "streaming", "backoff")
//   - reason: Why the state changed; empty when there is no reason
//   - enabled: Whether the connection switch is on
//   - timestamp: When the transition happened
func (c *Client) WriteConnectionState(serial, state, reason string, enabled bool, timestamp time.Time) {
	tags := map[string]string{"serial": serial, "state": state}
	if reason != "" {
		tags["reason"] = reason
	}
	c.writePoint(MeasurementConnection, tags, map[string]interface{}{"enabled": enabled}, timestamp)
}

// WriteCounters records a diagnostic counter snapshot.
//
// Parameters:
//   - serial: Grill serial, or empty for account-wide counters
//   - counters: Counter name to value
//   - timestamp: Snapshot time
func (c *Client) WriteCounters(serial string, counters map[string]uint64, timestamp time.Time) {
	if len(counters) == 0 {
		return
	}

	tags := map[string]string{"scope": "account"}
	if serial != "" {
		tags = map[string]string{"scope": "grill", "serial": serial}
	}

	fields := make(map[string]interface{}, len(counters))
	for name, value := range counters {
		fields[name] = int64(value) // #nosec G115 -- counters never approach MaxInt64
	}
	c.writePoint(MeasurementDiagnostics, tags, fields, timestamp)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
