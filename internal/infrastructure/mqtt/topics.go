package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every bridge topic unless configured
// otherwise (mqtt.topic_prefix).
const DefaultTopicPrefix = "g32"

// Topics builds the bridge's MQTT topics under a prefix.
//
//	topics := mqtt.Topics{Prefix: "g32"}
//	topics.State("G32A1B2C3D4")   // g32/state/G32A1B2C3D4
//	topics.Diagnostics("")        // g32/diagnostics
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// Grill Topics
// =============================================================================

// State returns the retained connection state topic for a grill.
//
// Example: g32/state/G32A1B2C3D4
func (t Topics) State(serial string) string {
	return fmt.Sprintf("%s/state/%s", t.prefix(), serial)
}

// Telemetry returns the topic decoded packets are published on.
//
// Example: g32/telemetry/G32A1B2C3D4
func (t Topics) Telemetry(serial string) string {
	return fmt.Sprintf("%s/telemetry/%s", t.prefix(), serial)
}

// Diagnostics returns the counter topic for a grill, or the account-wide
// counter topic when serial is empty.
//
// Example: g32/diagnostics/G32A1B2C3D4, g32/diagnostics
func (t Topics) Diagnostics(serial string) string {
	if serial == "" {
		return fmt.Sprintf("%s/diagnostics", t.prefix())
	}
	return fmt.Sprintf("%s/diagnostics/%s", t.prefix(), serial)
}

// Command returns the topic that switches a grill's connection.
//
// Example: g32/command/G32A1B2C3D4/connection
func (t Topics) Command(serial string) string {
	return fmt.Sprintf("%s/command/%s/connection", t.prefix(), serial)
}

// =============================================================================
// Bridge Topics
// =============================================================================

// DebugMode returns the topic that switches the debug log.
//
// Example: g32/debug/mode
func (t Topics) DebugMode() string {
	return fmt.Sprintf("%s/debug/mode", t.prefix())
}

// DebugLog returns the topic debug log snapshots are published on.
//
// Example: g32/debug/log
func (t Topics) DebugLog() string {
	return fmt.Sprintf("%s/debug/log", t.prefix())
}

// Health returns the retained bridge health topic.
//
// Example: g32/health
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health", t.prefix())
}

// SystemStatus returns the online/offline status topic used for the LWT.
//
// Example: g32/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllCommands returns a pattern matching every grill's connection command.
//
// Pattern: g32/command/+/connection
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+/connection", t.prefix())
}

// AllTopics returns a pattern matching every bridge topic.
//
// Pattern: g32/#
func (t Topics) AllTopics() string {
	return t.prefix() + "/#"
}

// CommandSerial extracts the serial from a connection command topic.
//
// Returns:
//   - string: The grill serial
//   - bool: false if topic is not a command topic under this prefix
func (t Topics) CommandSerial(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/command/")
	if !ok {
		return "", false
	}
	serial, ok := strings.CutSuffix(rest, "/connection")
	if !ok || serial == "" || strings.Contains(serial, "/") {
		return "", false
	}
	return serial, true
}
