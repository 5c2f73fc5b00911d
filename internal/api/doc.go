// Package api provides the local HTTP REST API and WebSocket server for
// the G32 bridge.
//
// It exposes the discovered grills, their connection state, diagnostic
// counters and the debug log, and lets a local client switch a grill's
// relay connection. Live updates are pushed over a WebSocket hub with
// four channels: telemetry, state, diagnostics and debug. A channel may
// be narrowed to one grill as "telemetry:{serial}".
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Routes (all under /api/v1):
//
//	GET  /health
//	GET  /metrics
//	GET  /grills
//	GET  /grills/{serial}
//	PUT  /grills/{serial}/connection   {"enabled": bool}
//	GET  /diagnostics
//	GET  /debug
//	PUT  /debug                        {"enabled": bool}
//	GET  /ws
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
