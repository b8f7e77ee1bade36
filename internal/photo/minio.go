package photo

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"repair-tracker-backend/config"
)

// MinIOStore keeps photos in an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore connects to the endpoint and creates the bucket if it does not exist.
func NewMinIOStore(ctx context.Context, cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// Save uploads r and returns the object URL.
func (s *MinIOStore) Save(ctx context.Context, machineID uint, ext string, r io.Reader, size int64, contentType string) (string, error) {
	name := objectName(machineID, ext)
	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}
	return objectURL(s.client.EndpointURL(), s.bucket, name), nil
}

// Delete removes the object behind ref.
func (s *MinIOStore) Delete(ctx context.Context, ref string) error {
	prefix := objectURL(s.client.EndpointURL(), s.bucket, "") + "/"
	name, ok := strings.CutPrefix(ref, prefix)
	if !ok || name == "" {
		return fmt.Errorf("%q: %w", ref, ErrForeignRef)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove from MinIO: %w", err)
	}
	return nil
}

func objectURL(endpoint *url.URL, bucket, name string) string {
	return endpoint.JoinPath(bucket, name).String()
}
