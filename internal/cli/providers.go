package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/marketplace-backend/internal/api/handlers"
	"github.com/eshaffer321/marketplace-backend/internal/application/bulk"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/config"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/export"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/jobstore"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/storage"
)

// archiveBackend is the configured archive plus what it needs at shutdown.
type archiveBackend struct {
	archive bulk.Archive
	pinger  handlers.Pinger
	close   func() error
}

// newArchive builds the archive selected by cfg.Archive.Backend.
// The returned backend's archive is nil for the "none" backend.
func newArchive(ctx context.Context, cfg config.ArchiveConfig, store *storage.Storage, logger *slog.Logger) (*archiveBackend, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.ArchiveNone:
		logger.Warn("bulk archive disabled; finished operations are lost after eviction")
		return &archiveBackend{close: noop}, nil

	case config.ArchiveSQLite:
		logger.Info("bulk archive using sqlite", "ttl", cfg.TTL.Duration)
		return &archiveBackend{archive: bulk.NewSQLArchive(store, cfg.TTL.Duration), close: noop}, nil

	case config.ArchiveRedis:
		client, err := jobstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		archive := jobstore.NewRedisArchive(client, cfg.TTL.Duration)
		logger.Info("bulk archive using redis", "ttl", cfg.TTL.Duration)
		return &archiveBackend{archive: archive, pinger: archive, close: client.Close}, nil
	}
	return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
}

// newArtifactStore builds the export store selected by cfg.Backend. The
// returned directory is non-empty for the local store so the API can serve it.
func newArtifactStore(ctx context.Context, cfg config.ExportConfig, logger *slog.Logger) (export.ArtifactStore, string, error) {
	switch cfg.Backend {
	case config.ExportLocal:
		store, err := export.NewLocalStore(cfg.LocalDir, cfg.BaseURL)
		if err != nil {
			return nil, "", err
		}
		logger.Info("exports stored locally", "dir", store.Dir(), "base_url", cfg.BaseURL)
		return store, store.Dir(), nil

	case config.ExportS3:
		store, err := export.NewS3Store(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		logger.Info("exports stored in s3", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return store, "", nil
	}
	return nil, "", fmt.Errorf("unknown export backend %q", cfg.Backend)
}
