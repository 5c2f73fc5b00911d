package g32

import (
	"time"

	"github.com/nerrad567/g32-bridge/internal/device"
)

// ConnectionState is the manager's view of one grill.
type ConnectionState string

const (
	// StateDisabled means no session runs and none will be started.
	StateDisabled ConnectionState = "disabled"

	// StateConnecting covers dialing and waiting for the first data.
	StateConnecting ConnectionState = "connecting"

	// StateStreaming means telemetry is flowing.
	StateStreaming ConnectionState = "streaming"

	// StateBackoff means the manager is waiting before the next attempt.
	StateBackoff ConnectionState = "backoff"
)

// Reason explains a state change.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonManual   Reason = "manual"
	ReasonGated    Reason = "gated"
	ReasonGaveUp   Reason = "gave_up"
	ReasonShutdown Reason = "shutdown"
	ReasonError    Reason = "error"
)

// StateChange is published whenever a grill's connection state or enabled
// flag changes.
type StateChange struct {
	Serial  string          `json:"serial"`
	State   ConnectionState `json:"state"`
	Enabled bool            `json:"enabled"`
	Reason  Reason          `json:"reason,omitempty"`
	Error   string          `json:"error,omitempty"`
	At      time.Time       `json:"at"`
}

// Status is a point-in-time view of one grill.
type Status struct {
	Grill       device.Grill    `json:"-"`
	State       ConnectionState `json:"state"`
	Enabled     bool            `json:"enabled"`
	Reason      Reason          `json:"reason,omitempty"`
	Latest      *Telemetry      `json:"latest,omitempty"`
	Diagnostics Diagnostics     `json:"diagnostics"`
}

// Gate decides whether a grill may be connected, typically from a
// presence signal. Watch delivers transitions; implementations call fn
// from their own goroutine.
type Gate interface {
	Permitted(serial string) bool
	Watch(serial string, fn func(permitted bool)) (unsubscribe func())
}

// GrillSummary counts grills by connection state.
type GrillSummary struct {
	Total     int `json:"total"`
	Enabled   int `json:"enabled"`
	Streaming int `json:"streaming"`
}
