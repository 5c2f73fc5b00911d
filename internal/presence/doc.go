// Package presence gates grill connections on MQTT presence topics.
//
// Each grill may be bound to a topic published by the home-automation
// system (for example a phone tracker). A grill is permitted while the
// last payload on its topic equals the configured home payload. Grills
// without a binding, and grills whose topic has not published yet, are
// permitted: the gate fails open.
//
// Gate implements g32.Gate. Watch callbacks run on the gate's dispatch
// goroutine, never on the MQTT client's, so a callback may block (the
// manager waits for sessions to close when a grill is gated).
package presence
