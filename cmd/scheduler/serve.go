package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/autoscaler-scheduler/internal/application"
	"github.com/example/autoscaler-scheduler/internal/config"
	httptransport "github.com/example/autoscaler-scheduler/internal/http"
	"github.com/example/autoscaler-scheduler/internal/logging"
	"github.com/example/autoscaler-scheduler/internal/messages"
	"github.com/example/autoscaler-scheduler/internal/persistence/memory"
	"github.com/example/autoscaler-scheduler/internal/persistence/sqlite"
	"github.com/example/autoscaler-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/autoscaler-scheduler/internal/trigger"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// policyBackend is the storage the service runs on.
type policyBackend interface {
	application.PolicyStore
	io.Closer
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (policyBackend, httptransport.HealthChecker, error) {
	if cfg.StorageDriver == config.StorageMemory {
		return memory.New(), nil, nil
	}
	storage, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLitePath), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	applied, err := storage.Migrate(ctx)
	if err != nil {
		_ = storage.Close()
		return nil, nil, err
	}
	logger.InfoContext(ctx, "database migrations applied", "count", applied, "path", cfg.SQLitePath)
	return storage, storage, nil
}

func openTriggerStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (trigger.Store, error) {
	if cfg.TriggerStore != config.TriggerStoreEventBridge {
		return trigger.NewMemoryStore(nil, trigger.WithLogger(logger)), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws configuration: %w", err)
	}
	return trigger.NewEventBridgeStoreFromConfig(awsCfg, trigger.EventBridgeConfig{
		TargetARN: cfg.EventBridge.TargetARN,
		RoleARN:   cfg.EventBridge.RoleARN,
		GroupName: cfg.EventBridge.GroupName,
	}, logger), nil
}

func (a *app) serve(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(a.stdout, cfg.LogLevel, cfg.LogFormat)

	backend, health, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		return err
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	catalog, err := messages.New(cfg.DefaultLanguage, logger)
	if err != nil {
		return err
	}

	triggers, err := openTriggerStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open trigger store", "error", err)
		return err
	}

	service := application.NewPolicyService(backend, triggers, nil, application.PolicyServiceConfig{
		TriggerTimeout:        cfg.TriggerTimeout,
		DeleteMissingNotFound: cfg.DeleteMissingNotFound,
	}, logger)

	g, ctx := errgroup.WithContext(ctx)

	if mem, ok := triggers.(*trigger.MemoryStore); ok {
		mem.SetFireFunc(service.OnFire)
		g.Go(func() error {
			if err := mem.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if n, err := service.Reconcile(ctx); err != nil {
		logger.Warn("trigger reconciliation incomplete", "registered", n, "error", err)
	} else {
		logger.Info("triggers reconciled", "registered", n)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Policies: httptransport.NewPolicyHandler(service, catalog, logger),
		Health:   health,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recoverer(logger),
		},
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("scheduler API listening", "addr", server.Addr, "storage", cfg.StorageDriver, "triggers", cfg.TriggerStore)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	return g.Wait()
}
