// Package migration applies versioned SQL migrations to the lending database.
//
// Migration files follow the naming convention {version}_{description}.sql
// (for example "001_lending_schema.sql") and are read from an fs.FS, which lets
// the sqlite package ship them embedded in the binary. Applied versions are
// tracked in the schema_migrations table; every migration runs inside its own
// transaction and the sequence must be free of gaps.
//
// Example usage:
//
//	manager := NewMigrationManager(NewFileScanner(), NewSQLiteExecutor(db), files, logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
