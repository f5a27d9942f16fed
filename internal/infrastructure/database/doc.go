// Package database provides SQLite connectivity for Homewatch Core.
//
// It manages:
//   - the connection (WAL mode, busy timeout, foreign keys, single writer)
//   - embedded schema migrations, one transaction per migration
//   - a WithTx helper for narrow read-modify-write updates
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
