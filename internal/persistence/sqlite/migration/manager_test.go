package migration

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(TestSQLiteConfig(filepath.Join(t.TempDir(), "migrate.db")))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestManager(db *sql.DB, fs afero.Fs) *Manager {
	return NewManager(NewScanner(fs), NewExecutor(db), "m", nil)
}

func TestManager_Run(t *testing.T) {
	t.Parallel()

	t.Run("applies pending migrations once", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		db := openTestDB(t)
		fs := writeFiles(t, map[string]string{
			"m/001_create.sql": "CREATE TABLE items (id TEXT PRIMARY KEY);",
			"m/002_seed.sql":   "INSERT INTO items (id) VALUES ('a');\nINSERT INTO items (id) VALUES ('b');",
		})
		manager := newTestManager(db, fs)

		applied, err := manager.Run(ctx)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if applied != 2 {
			t.Fatalf("expected 2 applied, got %d", applied)
		}
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count); err != nil || count != 2 {
			t.Fatalf("expected 2 seeded rows, got %d (err %v)", count, err)
		}

		again, err := manager.Run(ctx)
		if err != nil || again != 0 {
			t.Fatalf("expected idempotent rerun, got %d (err %v)", again, err)
		}

		status, err := manager.Status(ctx)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if status.CurrentVersion != "002" || len(status.Pending) != 0 || len(status.Applied) != 2 {
			t.Fatalf("unexpected status %+v", status)
		}
		ok, err := NewExecutor(db).IsApplied(ctx, "001")
		if err != nil || !ok {
			t.Fatalf("expected version 001 applied, got %v (err %v)", ok, err)
		}
	})

	t.Run("failed migration leaves no trace", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		db := openTestDB(t)
		fs := writeFiles(t, map[string]string{
			"m/001_create.sql": "CREATE TABLE items (id TEXT PRIMARY KEY);",
			"m/002_broken.sql": "CREATE TABLE other (id TEXT);\nINSERT INTO missing_table VALUES (1);",
		})
		applied, err := newTestManager(db, fs).Run(ctx)
		var migErr *MigrationError
		if !errors.As(err, &migErr) || migErr.Version != "002" {
			t.Fatalf("expected migration error for 002, got %v", err)
		}
		if applied != 1 {
			t.Fatalf("expected first migration to stay applied, got %d", applied)
		}
		var name string
		err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'other'`).Scan(&name)
		if !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("expected table from failed migration to be rolled back, got %q (err %v)", name, err)
		}
		if ok, _ := NewExecutor(db).IsApplied(ctx, "002"); ok {
			t.Fatalf("expected 002 not to be recorded")
		}
	})

	t.Run("detects gaps in the sequence", func(t *testing.T) {
		t.Parallel()
		db := openTestDB(t)
		fs := writeFiles(t, map[string]string{
			"m/001_a.sql": "CREATE TABLE a (id TEXT);",
			"m/003_c.sql": "CREATE TABLE c (id TEXT);",
		})
		if _, err := newTestManager(db, fs).Run(context.Background()); !errors.Is(err, ErrVersionGap) {
			t.Fatalf("expected ErrVersionGap, got %v", err)
		}
	})

	t.Run("detects edited migrations", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		db := openTestDB(t)
		fs := writeFiles(t, map[string]string{"m/001_a.sql": "CREATE TABLE a (id TEXT);"})
		if _, err := newTestManager(db, fs).Run(ctx); err != nil {
			t.Fatalf("run: %v", err)
		}
		if err := afero.WriteFile(fs, "m/001_a.sql", []byte("CREATE TABLE a (id INTEGER);"), 0o644); err != nil {
			t.Fatalf("rewrite: %v", err)
		}
		if _, err := newTestManager(db, fs).Run(ctx); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})
}

func TestSQLiteConfigSettings(t *testing.T) {
	t.Parallel()

	t.Run("renders pragmas into the DSN", func(t *testing.T) {
		t.Parallel()
		dsn := DefaultSQLiteConfig("/tmp/x.db").DSN()
		want := "file:/tmp/x.db?_pragma=busy_timeout%2830000%29&_pragma=foreign_keys%281%29&_pragma=journal_mode%28wal%29&_pragma=synchronous%28normal%29"
		if dsn != want {
			t.Fatalf("expected %s, got %s", want, dsn)
		}
	})

	t.Run("rejects invalid settings", func(t *testing.T) {
		t.Parallel()
		cases := map[string]SQLiteConfig{
			"empty path":   {},
			"journal mode": {Path: "x.db", JournalMode: "FAST"},
			"synchronous":  {Path: "x.db", Synchronous: "SOMETIMES"},
			"negative":     {Path: "x.db", MaxOpenConns: -1},
		}
		for name, cfg := range cases {
			if err := cfg.Validate(); err == nil {
				t.Fatalf("%s: expected validation error", name)
			}
		}
		if _, err := Open(SQLiteConfig{}); err == nil {
			t.Fatalf("expected Open to reject an invalid config")
		}
	})

	t.Run("foreign keys are enforced on pooled connections", func(t *testing.T) {
		t.Parallel()
		db := openTestDB(t)
		var enabled int
		if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&enabled); err != nil || enabled != 1 {
			t.Fatalf("expected foreign_keys=1, got %d (err %v)", enabled, err)
		}
	})
}
