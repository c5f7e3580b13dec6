// Package database provides SQLite connectivity for the Baby Buddy bridge.
//
// The database holds the child device registry. It is opened with WAL mode
// and a busy timeout, limited to a single connection, and migrated from the
// SQL files embedded by the migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every .up.sql file has a matching .down.sql file.
package database
