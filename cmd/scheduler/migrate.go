package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/example/autoscaler-scheduler/internal/logging"
	"github.com/example/autoscaler-scheduler/internal/persistence/sqlite"
	"github.com/example/autoscaler-scheduler/internal/persistence/sqlite/migration"
)

func (a *app) migrateCommand() *cobra.Command {
	var (
		dir    string
		dbPath string
		status bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations",
		Long: "Migrate applies the migrations compiled into the binary, or those in --dir, " +
			"to the SQLite database named by SCHEDULER_SQLITE_PATH or --db.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.SQLitePath = dbPath
			}
			logger := logging.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			storage, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLitePath), logger)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer func() {
				if cerr := storage.Close(); cerr != nil {
					logger.Error("failed to close storage", "error", cerr)
				}
			}()

			var fs afero.Fs = sqlite.EmbeddedMigrations()
			source := sqlite.MigrationsDir
			if dir != "" {
				fs, source = a.fs, dir
			}

			if status {
				st, err := storage.MigrationStatus(ctx, fs, source)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current version: %s\napplied: %d\npending: %d\n",
					versionOrNone(st.CurrentVersion), len(st.Applied), len(st.Pending))
				for _, m := range st.Pending {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", m.Version, m.Description)
				}
				return nil
			}

			applied, err := storage.MigrateFrom(ctx, fs, source)
			if err != nil {
				logger.Error("migration failed", slog.Int("applied", applied), slog.Any("error", err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s) to %s\n", applied, cfg.SQLitePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of migration files (default: embedded)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file (overrides SCHEDULER_SQLITE_PATH)")
	cmd.Flags().BoolVar(&status, "status", false, "report applied and pending migrations without applying")
	return cmd
}

func versionOrNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
