// Package database opens the SQLite file that holds the command log.
//
// It manages:
//   - The connection, with WAL mode and a busy timeout set in the DSN
//   - Versioned migrations read from an fs.FS (see package migrations)
//   - Health checks for the bridge health report
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database, migrations.FS))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql, with an
// optional matching .down.sql. Queries use parameterised statements and
// the database file is created with 0600 permissions.
package database
