package blob

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore talks to MinIO (or any S3-compatible endpoint) through minio-go.
type MinioStore struct {
	client    *minio.Client
	region    string
	publicURL string
}

func NewMinio(cfg Config) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("blob: minio endpoint required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: minio client: %w", err)
	}
	return &MinioStore{client: client, region: cfg.Region, publicURL: cfg.PublicURL}, nil
}

func (s *MinioStore) Driver() Driver { return DriverMinio }

func (s *MinioStore) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, bucket := range buckets {
		name := physicalBucket(bucket)
		exists, err := s.client.BucketExists(ctx, name)
		if err != nil {
			return fmt.Errorf("blob: check bucket %s: %w", name, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("blob: make bucket %s: %w", name, err)
		}
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, opts PutOptions) (Info, error) {
	upload, err := s.client.PutObject(ctx, physicalBucket(bucket), key, r, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return Info{}, fmt.Errorf("blob: put %s/%s: %w", bucket, key, err)
	}
	return Info{
		Bucket:       bucket,
		Key:          key,
		Size:         upload.Size,
		ContentType:  opts.ContentType,
		Metadata:     opts.Metadata,
		LastModified: upload.LastModified,
	}, nil
}

func (s *MinioStore) Get(ctx context.Context, bucket, key string) (Info, io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, physicalBucket(bucket), key, minio.GetObjectOptions{})
	if err != nil {
		return Info{}, nil, s.wrap(bucket, key, err)
	}
	stat, err := object.Stat()
	if err != nil {
		_ = object.Close()
		return Info{}, nil, s.wrap(bucket, key, err)
	}
	return infoFromMinio(bucket, stat), object, nil
}

func (s *MinioStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, physicalBucket(bucket), key, minio.RemoveObjectOptions{}); err != nil {
		return s.wrap(bucket, key, err)
	}
	return nil
}

func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]Info, error) {
	infos := make([]Info, 0)
	for object := range s.client.ListObjects(ctx, physicalBucket(bucket), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("blob: list %s/%s: %w", bucket, prefix, object.Err)
		}
		infos = append(infos, infoFromMinio(bucket, object))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *MinioStore) SignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = SignedURLExpiry
	}
	signed, err := s.client.PresignedGetObject(ctx, physicalBucket(bucket), key, expiry, nil)
	if err != nil {
		return "", s.wrap(bucket, key, err)
	}
	return signed.String(), nil
}

func (s *MinioStore) PublicURL(bucket, key string) string {
	return publicURL(s.publicURL, physicalBucket(bucket), key)
}

func (s *MinioStore) wrap(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return fmt.Errorf("blob: %s/%s: %w", bucket, key, err)
}

func infoFromMinio(bucket string, object minio.ObjectInfo) Info {
	return Info{
		Bucket:       bucket,
		Key:          object.Key,
		Size:         object.Size,
		ContentType:  object.ContentType,
		Metadata:     object.UserMetadata,
		LastModified: object.LastModified,
	}
}
