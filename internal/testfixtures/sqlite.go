package testfixtures

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/autoscaler-scheduler/internal/persistence/sqlite"
	"github.com/example/autoscaler-scheduler/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides a migrated SQLite storage in a temporary directory
// for integration-style persistence tests.
type SQLiteHarness struct {
	*sqlite.Storage

	Path string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a database file under tb.TempDir().
// Callers may invoke Close, but a cleanup callback is registered as well.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "scheduler.db")
	storage, err := sqlite.Open(migration.TestSQLiteConfig(path), slog.New(slog.DiscardHandler))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if _, err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage: storage,
		Path:    path,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
