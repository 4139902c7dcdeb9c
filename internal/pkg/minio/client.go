package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

// Client wraps minio.Client bound to a single bucket
type Client struct {
	client *minio.Client
	config *Config
	logger *logger.Logger
}

// NewClient creates a MinIO client; the bucket is created by EnsureBucket
func NewClient(cfg *Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("minio: nil config")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: failed to create client: %w", err)
	}

	log.Info("minio client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
	)
	return &Client{client: mc, config: cfg, logger: log}, nil
}

// Bucket returns the configured bucket name
func (c *Client) Bucket() string {
	return c.config.Bucket
}

// EnsureBucket creates the configured bucket if it does not exist
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return fmt.Errorf("minio: check bucket %s: %w", c.config.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.config.Bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
		return fmt.Errorf("minio: create bucket %s: %w", c.config.Bucket, err)
	}
	c.logger.Info("minio bucket created", zap.String("bucket", c.config.Bucket))
	return nil
}

// PutObject uploads reader under object name
func (c *Client) PutObject(ctx context.Context, object string, reader io.Reader, size int64, contentType string) error {
	_, err := c.client.PutObject(ctx, c.config.Bucket, object, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("minio: put %s: %w", object, err)
	}
	return nil
}

// PresignedGetURL returns a time-limited download URL that forces downloadName
func (c *Client) PresignedGetURL(ctx context.Context, object, downloadName string) (string, error) {
	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	u, err := c.client.PresignedGetObject(ctx, c.config.Bucket, object, c.config.PresignExpiry, params)
	if err != nil {
		return "", fmt.Errorf("minio: presign %s: %w", object, err)
	}
	return u.String(), nil
}
