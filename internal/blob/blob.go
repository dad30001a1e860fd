// Package blob stores uploaded files in named buckets behind one interface,
// with minio, S3 and in-memory drivers.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

type Driver string

const (
	DriverMinio  Driver = "minio"
	DriverS3     Driver = "s3"
	DriverMemory Driver = "memory"
)

// SignedURLExpiry is the lifetime of download links handed to clients.
const SignedURLExpiry = 60 * time.Second

var (
	ErrNotFound    = errors.New("blob: object not found")
	ErrUnsupported = errors.New("blob: unsupported operation")
)

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type Info struct {
	Bucket       string            `json:"bucket"`
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a thin S3-like abstraction over several buckets.
type Store interface {
	EnsureBuckets(ctx context.Context, buckets ...string) error
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, opts PutOptions) (Info, error)
	Get(ctx context.Context, bucket, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]Info, error)
	SignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	PublicURL(bucket, key string) string
	Driver() Driver
}

// Config selects and configures a driver.
type Config struct {
	Driver    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	PublicURL string
}

// Open builds the Store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(cfg.Driver))) {
	case DriverMinio, "":
		return NewMinio(cfg)
	case DriverS3:
		return NewS3(ctx, cfg)
	case DriverMemory:
		return NewMemory(cfg.PublicURL), nil
	default:
		return nil, fmt.Errorf("blob: unknown driver %q", cfg.Driver)
	}
}

// physicalBucket maps a logical bucket name onto one S3 naming rules accept.
func physicalBucket(bucket string) string {
	return strings.ReplaceAll(strings.ToLower(bucket), "_", "-")
}

func publicURL(base, bucket, key string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}
