package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/marketplace-backend/internal/application/bulk"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/config"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/storage"
)

func newBulkCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Inspect finished bulk operations in the archive",
	}
	cmd.AddCommand(newBulkStatusCmd(a), newBulkListCmd(a))
	return cmd
}

func newBulkStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <operation-id>",
		Short: "Show an archived bulk operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd.Context(), a.cfg, func(archive bulk.Archive) error {
				st, err := archive.Load(cmd.Context(), args[0])
				if errors.Is(err, bulk.ErrOperationNotFound) {
					return fmt.Errorf("operation %s not found in the %s archive", args[0], a.cfg.Archive.Backend)
				}
				if err != nil {
					return err
				}
				PrintOperation(cmd.OutOrStdout(), *st)
				return nil
			})
		},
	}
}

func newBulkListCmd(a *app) *cobra.Command {
	var (
		vendorID int64
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a vendor's archived bulk operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if vendorID <= 0 {
				return errors.New("--vendor must be a positive vendor id")
			}
			return withArchive(cmd.Context(), a.cfg, func(archive bulk.Archive) error {
				lister, ok := archive.(bulk.ArchiveLister)
				if !ok {
					return fmt.Errorf("the %s archive cannot list operations", a.cfg.Archive.Backend)
				}
				states, err := lister.ListByVendor(cmd.Context(), vendorID, limit)
				if err != nil {
					return err
				}
				PrintOperationTable(cmd.OutOrStdout(), states)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&vendorID, "vendor", 0, "vendor id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum operations to show")
	return cmd
}

// withArchive opens the configured archive for the duration of fn.
func withArchive(ctx context.Context, cfg *config.Config, fn func(bulk.Archive) error) error {
	logger := logging.NewLoggerWithComponent(cfg.Observability.Logging, "cli")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	backend, err := newArchive(ctx, cfg.Archive, store, logger)
	if err != nil {
		return err
	}
	defer func() { _ = backend.close() }()

	if backend.archive == nil {
		return errors.New("no archive is configured (archive.backend is none)")
	}
	return fn(backend.archive)
}
