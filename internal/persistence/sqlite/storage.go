// Package sqlite persists schedule policies, their registered triggers and the
// active schedule of each application in a SQLite database.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/example/autoscaler-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationsDir is the directory of the embedded migration files.
const MigrationsDir = "migrations"

// Storage bundles the connection pool with the policy repository.
type Storage struct {
	*PolicyRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

// Open connects to the database described by cfg. Call Migrate before use.
func Open(cfg migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{
		PolicyRepository: NewPolicyRepository(pool),
		pool:             pool,
		logger:           logger,
	}, nil
}

// EmbeddedMigrations exposes the migration files compiled into the binary.
func EmbeddedMigrations() afero.Fs {
	return &afero.FromIOFS{FS: embeddedMigrations}
}

// Migrate applies the embedded migrations and returns how many ran.
func (s *Storage) Migrate(ctx context.Context) (int, error) {
	return s.MigrateFrom(ctx, EmbeddedMigrations(), MigrationsDir)
}

// MigrateFrom applies the migrations found in dir on fs.
func (s *Storage) MigrateFrom(ctx context.Context, fs afero.Fs, dir string) (int, error) {
	applied, err := s.manager(fs, dir).Run(ctx)
	if err != nil {
		return applied, fmt.Errorf("migrate: %w", err)
	}
	return applied, nil
}

// MigrationStatus reports applied and pending migrations in dir on fs.
func (s *Storage) MigrationStatus(ctx context.Context, fs afero.Fs, dir string) (migration.Status, error) {
	return s.manager(fs, dir).Status(ctx)
}

func (s *Storage) manager(fs afero.Fs, dir string) *migration.Manager {
	return migration.NewManager(migration.NewScanner(fs), migration.NewExecutor(s.pool.DB()), dir, s.logger)
}

// Ping checks the connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
