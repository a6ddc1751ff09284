// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files follow the naming convention {version}_{description}.sql
// (e.g. "001_initial_schema.sql") and are read through an afero.Fs, so the
// service can run migrations embedded in the binary while tests use an
// in-memory filesystem. Applied versions are tracked in the
// schema_migrations table; each file runs in its own transaction.
//
// Example usage:
//
//	db, err := migration.Open(migration.DefaultSQLiteConfig(path))
//	if err != nil {
//		return err
//	}
//	manager := migration.NewManager(migration.NewScanner(fsys), migration.NewExecutor(db), ".", logger)
//	applied, err := manager.Run(ctx)
package migration
