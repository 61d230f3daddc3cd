package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docuchat-backend/internal/shared/storage/object"
)

const defaultLocatorTTL = time.Hour

// Options configures a MinIO-backed store.
type Options struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	LocatorTTL time.Duration
}

// Store implements object.Store against a MinIO (or any S3-compatible) server.
type Store struct {
	client     *minio.Client
	bucket     string
	locatorTTL time.Duration
}

// New creates a MinIO client for the configured endpoint.
func New(opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	ttl := opts.LocatorTTL
	if ttl <= 0 {
		ttl = defaultLocatorTTL
	}
	return &Store{client: client, bucket: opts.Bucket, locatorTTL: ttl}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Put uploads r to key after confirming nothing is stored there yet.
func (s *Store) Put(ctx context.Context, key, contentType string, size int64, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	clean, err := object.CleanKey(key)
	if err != nil {
		return 0, err
	}

	_, err = s.client.StatObject(ctx, s.bucket, clean, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return 0, fmt.Errorf("%w: %s", object.ErrExists, clean)
	case !isNoSuchKey(err):
		return 0, fmt.Errorf("minio stat object bucket=%s key=%s: %w", s.bucket, clean, err)
	}

	info, err := s.client.PutObject(ctx, s.bucket, clean, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("minio put object bucket=%s key=%s: %w", s.bucket, clean, err)
	}
	return info.Size, nil
}

// Open returns a reader for key. The object is stat'ed up front so a missing
// key surfaces here rather than on first Read.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := object.CleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, clean, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get object bucket=%s key=%s: %w", s.bucket, clean, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", object.ErrNotFound, clean)
		}
		return nil, fmt.Errorf("minio get object bucket=%s key=%s: %w", s.bucket, clean, err)
	}
	return obj, nil
}

// Locate returns a presigned GET URL.
func (s *Store) Locate(ctx context.Context, key string) (string, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, clean, s.locatorTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("minio presign key=%s: %w", clean, err)
	}
	return u.String(), nil
}

// Check verifies the bucket exists.
func (s *Store) Check(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("minio bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("minio bucket %s does not exist", s.bucket)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

var _ object.Store = (*Store)(nil)
