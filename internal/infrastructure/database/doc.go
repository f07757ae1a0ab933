// Package database opens and migrates the hub's SQLite store.
//
// One file holds everything the hub persists: the last committed zone and
// client snapshot, the inventory fingerprint, and the command audit trail.
// WAL mode keeps restore-time reads from blocking the background snapshot
// writer; a single pooled connection avoids SQLITE_BUSY between the hub's
// own goroutines.
//
// Schema changes are versioned .up.sql/.down.sql pairs embedded by the
// migrations package and applied in filename order by Migrate:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil { ... }
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil { ... }
//
// All queries in the repositories built on this package use parameterised
// statements, and the database file is created owner-only (0600).
package database
