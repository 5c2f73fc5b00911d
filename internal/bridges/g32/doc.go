// Package g32 implements the Otto Wilde G32 telemetry bridge.
//
// Each grill streams its live state through a vendor relay. This package
// keeps one supervised TCP session per grill against that relay, decodes
// the fixed-layout binary packets it pushes, and fans the results out to
// subscribers (MQTT, InfluxDB, the local API).
//
// # Architecture
//
//	┌──────────────┐  TCP 4502  ┌─────────────────┐  bus   ┌──────────────┐
//	│ Otto Wilde   │───────────►│ Manager         │───────►│ Bridge (MQTT)│
//	│ relay        │   packets  │  Session/device │        │ API / Influx │
//	└──────────────┘            └─────────────────┘        └──────────────┘
//
// # Key Responsibilities
//
//   - Frame and decode 51-byte telemetry packets (header 0xA3 0x3A)
//   - Run one session goroutine per enabled grill
//   - Retry failed sessions: 5 rapid retries, then exponential backoff,
//     giving up after 30 minutes without a successful handshake
//   - Honour external gating (presence) before every connection attempt
//   - Track diagnostic counters and a bounded debug log
//
// # Packet Layout
//
// Offsets are bytes counted from the header:
//
//	0-1   header A3 3A
//	6-13  zone temperatures 1-4 (2 bytes each)
//	14-21 probe temperatures 1-4 (2 bytes each)
//	22-23 gas weight in grams (big-endian)
//	30    lid open flag
//	31    light on flag
//	48    gas level percent
//
// Temperatures use decimal digit pairs: 0x01 0x40 reads as 10 + 4.0 = 14.0°C.
//
// # Thread Safety
//
// Manager, Bus and DebugLog are safe for concurrent use. Framer and
// Session are owned by a single goroutine.
package g32
