package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MediaResolver turns a stored media reference into a URL a platform can fetch
type MediaResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// ObjectPresigner is the subset of the MinIO client used for presigning
type ObjectPresigner interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// StorageConfig locates the media bucket
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	URLTTL    time.Duration
}

// NewMinioClient connects to the object store holding campaign media
func NewMinioClient(cfg StorageConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return client, nil
}

// StorageMediaResolver passes absolute URLs through and presigns bucket keys
type StorageMediaResolver struct {
	presigner ObjectPresigner
	bucket    string
	ttl       time.Duration
}

// NewStorageMediaResolver creates a resolver. A nil presigner only accepts absolute URLs.
func NewStorageMediaResolver(presigner ObjectPresigner, bucket string, ttl time.Duration) *StorageMediaResolver {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &StorageMediaResolver{presigner: presigner, bucket: bucket, ttl: ttl}
}

func (r *StorageMediaResolver) ResolveURL(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", NewValidationError("MISSING_MEDIA", "media reference is empty")
	}
	if strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://") {
		return ref, nil
	}
	if r.presigner == nil {
		return "", NewConfigError("STORAGE_NOT_CONFIGURED", "media reference is a storage key but object storage is not configured")
	}

	u, err := r.presigner.PresignedGetObject(ctx, r.bucket, strings.TrimPrefix(ref, "/"), r.ttl, nil)
	if err != nil {
		return "", NewTransientError("MEDIA_PRESIGN_FAILED", err.Error(), 0, err)
	}
	return u.String(), nil
}
