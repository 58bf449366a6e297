// Package database provides SQLite connectivity for the measurement store.
//
// This package manages:
//   - Database connection with WAL mode so dashboards can read during a run
//   - Embedded schema migrations
//   - Column introspection for stores written by older releases
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The store file permissions are set to 0600
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations are additive. New columns must be NULLABLE or carry a DEFAULT,
// and readers check column presence with TableColumns before selecting.
package database
