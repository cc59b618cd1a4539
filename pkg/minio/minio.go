package minio

import (
	"context"
	"fmt"

	"contaminer/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(NewMirror))

// Mirror copies local artifacts to a bucket.
type Mirror struct {
	client *minio.Client
	bucket string
}

// NewMirror returns nil when MINIO.ENDPOINT is empty, artifacts then only
// live on local disk.
func NewMirror(c *config.Config) (*Mirror, error) {
	if c.Minio.Endpoint == "" {
		return nil, nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, c.Minio.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", c.Minio.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, c.Minio.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", c.Minio.BucketName, err)
		}
	}

	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.String("bucket", c.Minio.BucketName))
	return &Mirror{client: client, bucket: c.Minio.BucketName}, nil
}

// Put uploads localPath as object.
func (m *Mirror) Put(ctx context.Context, object, localPath string) error {
	_, err := m.client.FPutObject(ctx, m.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("mirror %s: %w", object, err)
	}
	return nil
}

// RemovePrefix deletes every object under prefix.
func (m *Mirror) RemovePrefix(ctx context.Context, prefix string) error {
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for res := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			return fmt.Errorf("remove %s: %w", res.ObjectName, res.Err)
		}
	}
	return nil
}
