package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/internal/config"
	"github.com/fruitsalade/explorer/internal/storage/local"
	s3backend "github.com/fruitsalade/explorer/internal/storage/s3"
)

// NewBackendFromConfig creates the configured content backend, wrapped
// with metrics.
func NewBackendFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.StorageBackend {
	case config.StorageS3:
		b, err = s3backend.New(ctx, s3backend.Config{
			Endpoint:     cfg.S3Endpoint,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Region:       cfg.S3Region,
			UseSSL:       cfg.S3UseSSL,
			CreateBucket: true,
		}, logger)
	case config.StorageLocal:
		b, err = local.New(local.Config{RootPath: cfg.LocalStoragePath, CreateDirs: true})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.StorageBackend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(b), nil
}
