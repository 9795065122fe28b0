package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"codedrop-go/internal/config"
)

// PutDestination is a one-time upload target: clients POST the raw bytes to
// URL with FormFields included as multipart form values.
type PutDestination struct {
	URL        string            `json:"url"`
	FormFields map[string]string `json:"form_fields"`
}

// Provider defines the object-store operations the transfer core consumes.
type Provider interface {
	// IssuePutDestination returns a pre-signed upload destination for key,
	// valid for ttl.
	IssuePutDestination(ctx context.Context, key, contentType string, ttl time.Duration) (*PutDestination, error)

	// IssueGetURL returns a pre-signed download URL for key. filename sets the
	// Content-Disposition the object is served with.
	IssueGetURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error)

	// GetObjectStream opens the object's bytes for reading.
	GetObjectStream(ctx context.Context, key string) (io.ReadCloser, error)

	// PutObjectStream writes an object directly, bypassing pre-signing. Used
	// for server-produced objects such as archives. size may be -1 if unknown.
	PutObjectStream(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// DeleteObject removes a single object.
	DeleteObject(ctx context.Context, key string) error

	// DeleteObjects removes a batch of objects in one call.
	DeleteObjects(ctx context.Context, keys []string) error

	// Health reports provider reachability.
	Health(ctx context.Context) map[string]string

	// Close cleans up any resources
	Close() error
}

// NewProvider creates a storage provider based on configuration
func NewProvider(cfg config.StorageConfig, baseURL, secret string) (Provider, error) {
	switch cfg.Provider {
	case "local":
		return NewLocalProvider(cfg.LocalPath, baseURL, secret)
	case "minio":
		return NewMinioProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}
