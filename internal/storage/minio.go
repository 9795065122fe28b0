package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"codedrop-go/internal/config"
)

// MinioProvider implements Provider over any S3-compatible object store.
type MinioProvider struct {
	client *minio.Client
	bucket string
}

func NewMinioProvider(cfg config.StorageConfig) (*MinioProvider, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		log.Info().Str("bucket", cfg.Bucket).Msg("bucket does not exist, creating")
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket: %w", err)
		}
	}

	return &MinioProvider{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioProvider) IssuePutDestination(ctx context.Context, key, contentType string, ttl time.Duration) (*PutDestination, error) {
	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(m.bucket); err != nil {
		return nil, fmt.Errorf("setting post policy bucket: %w", err)
	}
	if err := policy.SetKey(key); err != nil {
		return nil, fmt.Errorf("setting post policy key: %w", err)
	}
	if err := policy.SetExpires(time.Now().UTC().Add(ttl)); err != nil {
		return nil, fmt.Errorf("setting post policy expiry: %w", err)
	}
	if contentType != "" {
		if err := policy.SetContentType(contentType); err != nil {
			return nil, fmt.Errorf("setting post policy content type: %w", err)
		}
	}

	postURL, formData, err := m.client.PresignedPostPolicy(ctx, policy)
	if err != nil {
		return nil, fmt.Errorf("presigning post policy: %w", err)
	}

	return &PutDestination{
		URL:        postURL.String(),
		FormFields: formData,
	}, nil
}

func (m *MinioProvider) IssueGetURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	params := make(url.Values)
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}

	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presigning get: %w", err)
	}
	return u.String(), nil
}

func (m *MinioProvider) GetObjectStream(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting object %s: %w", key, err)
	}
	// GetObject is lazy; surface missing objects here instead of on first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("statting object %s: %w", key, err)
	}
	return obj, nil
}

func (m *MinioProvider) PutObjectStream(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", key, err)
	}
	return nil
}

func (m *MinioProvider) DeleteObject(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("removing object %s: %w", key, err)
	}
	return nil
}

func (m *MinioProvider) DeleteObjects(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	var firstErr error
	for rmErr := range m.client.RemoveObjects(ctx, m.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rmErr.Err != nil {
			log.Error().Err(rmErr.Err).Str("key", rmErr.ObjectName).Msg("batch delete failed for object")
			if firstErr == nil {
				firstErr = fmt.Errorf("removing object %s: %w", rmErr.ObjectName, rmErr.Err)
			}
		}
	}
	return firstErr
}

func (m *MinioProvider) Health(ctx context.Context) map[string]string {
	stats := make(map[string]string)
	if _, err := m.client.BucketExists(ctx, m.bucket); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}
	stats["status"] = "up"
	stats["bucket"] = m.bucket
	return stats
}

func (m *MinioProvider) Close() error {
	return nil
}
