// Package publish mirrors committed documents to object storage so the
// static JSON endpoint can be served without a site rebuild.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

var ErrMissingBucket = errors.New("publish bucket is required")

type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) error
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinIO uploads to any S3-compatible bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

func NewMinIO(cfg MinIOConfig, logger *zap.Logger) (*MinIO, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrMissingBucket
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &MinIO{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (m *MinIO) Publish(ctx context.Context, key string, body []byte) error {
	key = strings.TrimPrefix(key, "/")
	info, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  "application/json",
		CacheControl: "no-store",
	})
	if err != nil {
		return fmt.Errorf("publish %s/%s: %w", m.bucket, key, err)
	}
	m.logger.Info("document published",
		zap.String("bucket", m.bucket),
		zap.String("key", key),
		zap.String("etag", info.ETag),
		zap.Int("bytes", len(body)),
	)
	return nil
}
