package minio

import (
	"context"
	"fmt"
	"time"

	"progression-engine/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(registerClient))

// registerClient returns nil when MINIO.ENDPOINT is unset; card images then
// fall back to the URL template. A configured but missing bucket is an
// error because every presigned URL would point at nothing.
func registerClient(c *config.Config) (*minio.Client, error) {
	if c.Minio.Endpoint == "" {
		zap.L().Info("MinIO disabled, card images use the URL template")
		return nil, nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client %s: %w", c.Minio.Endpoint, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, c.Minio.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", c.Minio.BucketName, err)
	}
	if !exists {
		return nil, fmt.Errorf("card asset bucket %s does not exist", c.Minio.BucketName)
	}

	zap.L().Info("MinIO client initialized",
		zap.String("endpoint", c.Minio.Endpoint),
		zap.String("bucket", c.Minio.BucketName),
		zap.Duration("presign_ttl", c.Minio.PresignTTL),
	)
	return client, nil
}
