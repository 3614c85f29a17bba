package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/marketplace-backend/internal/api"
	"github.com/eshaffer321/marketplace-backend/internal/api/handlers"
	"github.com/eshaffer321/marketplace-backend/internal/application/bulk"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/config"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/storage"
)

const shutdownTimeout = 30 * time.Second

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Port int
}

func newServeCmd(a *app) *cobra.Command {
	flags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the bulk operation worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return RunServe(cmd.Context(), a.cfg, flags)
		},
	}

	cmd.Flags().IntVar(&flags.Port, "port", 0, "port to listen on (overrides config)")
	return cmd
}

// RunServe runs the API server until SIGINT or SIGTERM, then drains running
// bulk operations.
func RunServe(ctx context.Context, cfg *config.Config, flags *ServeFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.NewLoggerWithComponent(cfg.Observability.Logging, "api")

	// Initialize storage
	store, err := storage.NewStorage(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	archive, err := newArchive(ctx, cfg.Archive, store, logger)
	if err != nil {
		return err
	}
	defer func() { _ = archive.close() }()

	artifacts, exportDir, err := newArtifactStore(ctx, cfg.Export, logger)
	if err != nil {
		return err
	}

	bulkLogger := logging.NewLoggerWithComponent(cfg.Observability.Logging, "bulk")
	bulkService := bulk.NewService(store, artifacts, nil, archive.archive, bulkLogger, bulk.OptionsFromConfig(cfg.Bulk))
	bulkService.StartBackgroundCleanup()

	checks := map[string]handlers.Pinger{"database": store}
	if archive.pinger != nil {
		checks["archive"] = archive.pinger
	}

	apiCfg := api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ExportDir:      exportDir,
	}
	if flags != nil && flags.Port > 0 {
		apiCfg.Port = flags.Port
	}

	server := api.NewServer(apiCfg, bulkService, checks, logger)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		// Start only returns early on a listen failure
		_ = bulkService.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		errs = append(errs, err)
	}
	if err := bulkService.Shutdown(shutdownCtx); err != nil {
		logger.Error("bulk shutdown error", slog.Any("error", err))
		errs = append(errs, err)
	}

	logger.Info("server stopped")
	return errors.Join(errs...)
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	cmd := NewRootCmd(version)
	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
