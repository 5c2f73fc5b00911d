// Package device holds the grill catalogue for g32-bridge.
//
// Grills are discovered from the Otto Wilde account at startup. The
// Registry keeps them in discovery order for the rest of the process and
// mirrors them into SQLite, so the bridge can still stream from known
// grills when the cloud API is unreachable on a later start.
//
// # Key Types
//
//   - Grill: serial, subscribe secret (pop key), nickname, firmware
//   - GasBuddy: tank metadata reported by the cloud (capacity, tare, dates)
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//
//	if err := registry.Replace(ctx, discovered); err != nil {
//	    return err
//	}
//	grill, err := registry.Get("G32ABC123456")
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Grill values are copied on the
// way in and out.
package device
