package g32

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nerrad567/g32-bridge/internal/device"
)

// BridgeName identifies this bridge in health messages.
const BridgeName = "g32"

// StateMessage reports a grill's connection state.
// Topic: {prefix}/state/{serial}
// QoS: 1, Retained: Yes
type StateMessage struct {
	Serial    string          `json:"serial"`
	Name      string          `json:"name"`
	State     ConnectionState `json:"state"`
	Enabled   bool            `json:"enabled"`
	Reason    Reason          `json:"reason,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TelemetryMessage is one decoded packet plus values derived from the
// grill's cloud metadata.
// Topic: {prefix}/telemetry/{serial}
// QoS: configured, Retained: No
type TelemetryMessage struct {
	Serial    string         `json:"serial"`
	Timestamp time.Time      `json:"timestamp"`
	Values    map[string]any `json:"values"`

	// GasRemainingKg is the scale reading in kilograms.
	GasRemainingKg decimal.Decimal `json:"gas_remaining_kg"`

	// GasRemainingPercent is nil when the tank capacity is unknown.
	GasRemainingPercent *decimal.Decimal `json:"gas_remaining_percent,omitempty"`

	// Static holds gas tank metadata from the cloud.
	Static map[string]any `json:"static,omitempty"`
}

// DiagnosticsMessage reports diagnostic counters.
// Topic: {prefix}/diagnostics/{serial}, or {prefix}/diagnostics for the
// account-wide counters.
// QoS: 1, Retained: Yes
type DiagnosticsMessage struct {
	Diagnostics
	Timestamp time.Time `json:"timestamp"`
}

// DebugLogMessage carries the debug log, newest first.
// Topic: {prefix}/debug/log
// QoS: 0, Retained: Yes
type DebugLogMessage struct {
	Enabled   bool      `json:"enabled"`
	Text      string    `json:"text"`
	Entries   []string  `json:"entries"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy means MQTT is connected and every enabled grill streams.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded means the bridge runs with problems.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline is published by the broker as the LWT.
	HealthOffline HealthStatus = "offline"

	// HealthStarting is published during startup.
	HealthStarting HealthStatus = "starting"

	// HealthStopping is published during shutdown.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: {prefix}/health
// QoS: 1, Retained: Yes
// Interval: Every 30 seconds
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Grills        int          `json:"grills"`
	Enabled       int          `json:"enabled"`
	Streaming     int          `json:"streaming"`
	Reason        string       `json:"reason,omitempty"`
}

// ConnectionCommand switches a grill's connection.
// Topic: {prefix}/command/{serial}/connection
//
// Accepted payloads: ON, OFF, true, false, 1, 0 (case-insensitive) or
// JSON {"enabled": bool}.
type ConnectionCommand struct {
	Enabled bool `json:"enabled"`
}

// NewStateMessage creates a state message from a state change.
func NewStateMessage(g device.Grill, c StateChange) StateMessage {
	return StateMessage{
		Serial:    c.Serial,
		Name:      g.DisplayName(),
		State:     c.State,
		Enabled:   c.Enabled,
		Reason:    c.Reason,
		Error:     c.Error,
		Timestamp: c.At.UTC(),
	}
}

// NewTelemetryMessage creates a telemetry message for grill g.
func NewTelemetryMessage(g device.Grill, t *Telemetry) TelemetryMessage {
	msg := TelemetryMessage{
		Serial:         t.Serial,
		Timestamp:      t.ReceivedAt.UTC(),
		Values:         t.Values(),
		GasRemainingKg: device.GasRemainingKg(t.GasWeight),
		Static:         g.StaticSensors(),
	}
	if pct, ok := g.GasRemainingPercent(t.GasWeight); ok {
		msg.GasRemainingPercent = &pct
	}
	return msg
}

// NewDiagnosticsMessage wraps a diagnostics snapshot.
func NewDiagnosticsMessage(d Diagnostics, at time.Time) DiagnosticsMessage {
	return DiagnosticsMessage{Diagnostics: d, Timestamp: at.UTC()}
}

// NewDebugLogMessage creates a debug log message.
func NewDebugLogMessage(enabled bool, entries []DebugEntry, at time.Time) DebugLogMessage {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return DebugLogMessage{
		Enabled:   enabled,
		Text:      strings.Join(lines, "\n"),
		Entries:   lines,
		Timestamp: at.UTC(),
	}
}

// NewLWTMessage creates the Last Will and Testament health message.
func NewLWTMessage() HealthMessage {
	return HealthMessage{
		Bridge:    BridgeName,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// ParseSwitch parses an ON/OFF style payload.
//
// Returns:
//   - bool: The requested state
//   - error: If the payload is not a recognised switch value
func ParseSwitch(payload []byte) (bool, error) {
	s := strings.TrimSpace(string(payload))

	if strings.HasPrefix(s, "{") {
		var cmd struct {
			Enabled *bool `json:"enabled"`
		}
		if err := json.Unmarshal([]byte(s), &cmd); err != nil {
			return false, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		if cmd.Enabled == nil {
			return false, fmt.Errorf("%w: missing enabled", ErrInvalidCommand)
		}
		return *cmd.Enabled, nil
	}

	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidCommand, s)
	}
}

// Fields returns the record as time-series fields. Channels without a
// valid reading are omitted.
func (t *Telemetry) Fields() map[string]any {
	f := make(map[string]any, 13)
	for i, z := range t.Zones {
		if z != nil {
			f[fmt.Sprintf("zone_%d", i+1)] = *z
		}
	}
	for i, p := range t.Probes {
		if p != nil {
			f[fmt.Sprintf("probe_%d", i+1)] = *p
		}
	}
	f["gas_weight"] = t.GasWeight
	f["gas_level"] = t.GasLevel
	f["gas_low"] = t.GasLow
	f["lid_open"] = t.LidOpen
	f["light_on"] = t.LightOn
	return f
}
