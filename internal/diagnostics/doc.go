// Package diagnostics persists the bridge's diagnostic counters in SQLite
// so they survive restarts.
//
// The Repository restores counters into the connection manager at
// startup (it implements g32.CounterLoader). The Persister subscribes to
// the manager's diagnostics stream and writes changed counters back in
// batches.
//
// Schema (see migrations/):
//
//	grill_counters(serial, counter, value, updated_at)
//
// Account-wide counters are stored with an empty serial.
package diagnostics
