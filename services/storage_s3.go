package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	s3SaveTimeout   = 30 * time.Second
	s3DeleteTimeout = 15 * time.Second
	// presignTTL bounds links handed out for private buckets.
	presignTTL = 24 * time.Hour
)

// S3Storage keeps exports in an S3-compatible bucket (AWS, R2, MinIO).
// Without a public base URL, Save returns a presigned download link.
type S3Storage struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewS3Storage validates cfg and builds the client. No request is made.
func NewS3Storage(cfg StorageConfig) (*S3Storage, error) {
	var missing []string
	for name, v := range map[string]string{
		"endpoint":   cfg.Endpoint,
		"bucket":     cfg.Bucket,
		"access key": cfg.AccessKey,
		"secret key": cfg.SecretKey,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("incomplete S3 config: missing %s", strings.Join(sortedCopy(missing), ", "))
	}

	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	lookup := minio.BucketLookupAuto
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       "auto",
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase != "" && !strings.Contains(publicBase, "://") {
		publicBase = "https://" + publicBase
	}
	return &S3Storage{client: client, bucket: cfg.Bucket, publicBase: publicBase}, nil
}

// splitEndpoint accepts "host[:port]" (TLS) or a full http(s) URL.
func splitEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid S3 endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	}
	return "", false, fmt.Errorf("invalid S3 endpoint scheme %q", u.Scheme)
}

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func (s *S3Storage) Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	ctx, cancel := withDefaultTimeout(ctx, s3SaveTimeout)
	defer cancel()

	size := int64(-1)
	if br, ok := r.(*bytes.Reader); ok {
		size = int64(br.Len())
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", path.Base(key)),
		CacheControl:       "private, max-age=86400",
		UserMetadata:       map[string]string{"creator-tool": CreatorTool},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if s.publicBase != "" {
		return s.PublicURL(key), nil
	}
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return signed.String(), nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	ctx, cancel := withDefaultTimeout(ctx, s3DeleteTimeout)
	defer cancel()
	err := s.client.RemoveObject(ctx, s.bucket, strings.TrimPrefix(key, "/"), minio.RemoveObjectOptions{})
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
		return nil
	}
	return err
}

// PublicURL is the unsigned address of key: under the public base when one
// is configured, otherwise on the bucket endpoint.
func (s *S3Storage) PublicURL(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.publicBase != "" {
		return s.publicBase + "/" + key
	}
	u := *s.client.EndpointURL()
	u.Path = "/" + s.bucket + "/" + key
	return u.String()
}

func (s *S3Storage) IsLocal() bool { return false }

func sortedCopy(vals []string) []string {
	out := append([]string(nil), vals...)
	sort.Strings(out)
	return out
}
