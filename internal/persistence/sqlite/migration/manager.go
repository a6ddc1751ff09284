package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  *Scanner
	executor *Executor
	dir      string
	logger   *slog.Logger
}

// NewManager wires a scanner over dir to an executor.
func NewManager(scanner *Scanner, executor *Executor, dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:  scanner,
		executor: executor,
		dir:      dir,
		logger:   logger.With("component", "migration"),
	}
}

// Run applies every pending migration and returns how many ran. It stops at
// the first failure; earlier migrations stay applied.
func (m *Manager) Run(ctx context.Context) (int, error) {
	started := time.Now()
	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}
	if len(status.Pending) == 0 {
		m.logger.Info("schema up to date", "version", status.CurrentVersion)
		return 0, nil
	}

	for i, migration := range status.Pending {
		m.logger.Info("applying migration",
			"version", migration.Version,
			"description", migration.Description,
			"position", fmt.Sprintf("%d/%d", i+1, len(status.Pending)),
		)
		if err := m.executor.Execute(ctx, migration); err != nil {
			m.logger.Error("migration failed", "version", migration.Version, "error", err)
			return i, err
		}
	}

	m.logger.Info("migrations applied",
		"count", len(status.Pending),
		"version", status.Pending[len(status.Pending)-1].Version,
		"duration", time.Since(started),
	)
	return len(status.Pending), nil
}

// Status compares the files on disk with schema_migrations. Applied files
// whose checksum changed, applied versions without a file and gaps in the
// file sequence are reported as errors.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}
	available, err := m.scanner.Scan(m.dir)
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}
	if err := checkSequence(available); err != nil {
		return Status{}, err
	}

	byVersion := make(map[int]Migration, len(available))
	for _, migration := range available {
		number, _ := strconv.Atoi(migration.Version)
		byVersion[number] = migration
	}
	done := make(map[int]bool, len(applied))
	status := Status{Applied: applied}
	for _, a := range applied {
		number, err := strconv.Atoi(a.Version)
		if err != nil {
			return Status{}, newMigrationError(a.Version, "", "read schema_migrations",
				fmt.Errorf("applied version %q is not numeric", a.Version))
		}
		file, ok := byVersion[number]
		if !ok {
			return Status{}, newMigrationError(a.Version, "", "match applied version",
				fmt.Errorf("%w: no file for applied version", ErrVersionGap))
		}
		if a.Checksum != "" && a.Checksum != file.Checksum {
			return Status{}, newMigrationError(a.Version, file.FilePath, "verify checksum", ErrChecksumMismatch)
		}
		done[number] = true
		status.CurrentVersion = a.Version
	}
	for _, migration := range available {
		number, _ := strconv.Atoi(migration.Version)
		if !done[number] {
			status.Pending = append(status.Pending, migration)
		}
	}
	return status, nil
}

func checkSequence(available []Migration) error {
	for i := 1; i < len(available); i++ {
		prev, _ := strconv.Atoi(available[i-1].Version)
		cur, _ := strconv.Atoi(available[i].Version)
		if cur != prev+1 {
			return newMigrationError(available[i].Version, available[i].FilePath, "validate sequence",
				fmt.Errorf("%w: missing version %03d", ErrVersionGap, prev+1))
		}
	}
	return nil
}
