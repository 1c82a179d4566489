package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
)

// DocumentStore keeps uploaded agreement files so processing can be re-run.
// Open returns a NOT_FOUND AppError for unknown keys.
type DocumentStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New selects the backend named by cfg.Driver.
func New(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (DocumentStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.LocalDir, logger)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			PathStyle:       cfg.PathStyle,
		}, logger)
	case "minio":
		return NewMinioStore(ctx, MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		}, logger)
	}
	return nil, common.NewAppError(common.CodeConfiguration, "unknown storage driver "+cfg.Driver, common.ErrNotConfigured)
}

// AgreementKey is the object key for an uploaded agreement. The extension is
// kept so the Normalizer can dispatch on it after a fetch.
func AgreementKey(householdID, agreementID uuid.UUID, ext string) string {
	return fmt.Sprintf("agreements/%s/%s.%s", householdID, agreementID, constants.NormalizeExt(ext))
}

// FetchToFile copies the object at key into dir and returns the local path.
func FetchToFile(ctx context.Context, store DocumentStore, key, dir string) (string, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dst := filepath.Join(dir, filepath.Base(strings.ReplaceAll(key, "\\", "/")))
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create local copy: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", fmt.Errorf("copy %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close local copy: %w", err)
	}
	return dst, nil
}
