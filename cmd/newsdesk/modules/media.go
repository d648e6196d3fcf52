package modules

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/newsdesk/internal/artifact"
	"github.com/memohai/newsdesk/internal/config"
	"github.com/memohai/newsdesk/internal/db"
	"github.com/memohai/newsdesk/internal/media"
	"github.com/memohai/newsdesk/internal/storage"
	"github.com/memohai/newsdesk/internal/storage/blob"
	"github.com/memohai/newsdesk/internal/storage/local"
	"github.com/memohai/newsdesk/internal/storage/s3"
	"github.com/memohai/newsdesk/internal/transcode"
)

var MediaModule = fx.Module(
	"media",
	fx.Provide(
		artifact.NewNamer,
		provideStorageBackend,
		provideTranscoder,
		provideIngestService,
		media.NewCatalogService,
	),
)

func provideStorageBackend(log *slog.Logger, cfg config.Config, conn *db.SQL, namer *artifact.Namer) (storage.Backend, error) {
	log.Info("storage backend", slog.String("backend", cfg.Storage.Backend))
	switch cfg.Storage.Backend {
	case config.BackendBlob:
		return blob.New(log, conn, namer), nil
	case config.BackendS3:
		s3cfg := s3.Config{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			Prefix:   cfg.S3.Prefix,
		}
		client, err := s3.NewClient(context.Background(), s3cfg)
		if err != nil {
			return nil, err
		}
		return s3.New(log, client, s3cfg, namer)
	case config.BackendFilesystem:
		return local.New(log, cfg.Storage.Root, cfg.Server.PublicBaseURL, namer)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func provideTranscoder(log *slog.Logger, cfg config.Config) (media.Transcoder, error) {
	timeout, err := cfg.Transcode.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return transcode.New(log, transcode.Config{
		FFmpegPath:    cfg.Transcode.FFmpegPath,
		Timeout:       timeout,
		MaxConcurrent: cfg.Transcode.MaxConcurrent,
	}), nil
}

func provideIngestService(log *slog.Logger, cfg config.Config, backend storage.Backend, transcoder media.Transcoder, namer *artifact.Namer) *media.IngestService {
	return media.NewIngestService(log, backend, transcoder, namer, media.IngestConfig{
		MaxBytes:  cfg.Storage.MaxUploadBytes,
		FailedDir: cfg.Transcode.FailedDir,
	})
}
