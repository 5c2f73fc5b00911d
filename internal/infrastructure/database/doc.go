// Package database provides the SQLite store used by g32-bridge.
//
// The store is small: the grill catalogue from the last successful
// discovery and the diagnostic counters that must survive restarts. It
// runs in WAL mode with a single writer connection.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are applied oldest first, each in its
// own transaction.
package database
