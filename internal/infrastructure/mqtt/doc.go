// Package mqtt provides MQTT client connectivity for the G32 bridge.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge publishes grill state, telemetry and diagnostic counters to
// the broker and takes connection and debug commands from it. Presence
// topics published by the home-automation system gate connections.
//
//	Grill relay → g32-bridge ↔ MQTT Broker ↔ Home automation
//
// Every topic hangs off a configurable prefix (mqtt.topic_prefix, default
// "g32"); see Topics.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Take connection commands for every grill
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        serial, _ := topics.CommandSerial(topic)
//	        return handle(serial, payload)
//	    })
//
//	// Publish retained grill state
//	client.Publish(topics.State("G32A1B2C3D4"), payload, 1, true)
package mqtt
