// Package archive publishes completed analysis entries to S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultRegion = "us-east-1"

// S3Sink writes one JSON object per completed entry.
type S3Sink struct {
	client *minio.Client
	bucket string
	prefix string
	region string

	initOnce sync.Once
	initErr  error
}

var _ contract.ResultSink = &S3Sink{} // Compile-time check

// NewS3Sink creates a sink for cfg. It does not contact the endpoint; the
// bucket is checked on first publish.
func NewS3Sink(cfg contract.ArchiveConfig) (*S3Sink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client for %s: %w", endpoint, err)
	}

	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: region,
	}, nil
}

// ensureBucket creates the bucket once if it is missing.
func (s *S3Sink) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Publish uploads entry as JSON under ObjectKey.
func (s *S3Sink) Publish(ctx context.Context, entry *schema.CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}
	if entry.RunID == "" {
		return fmt.Errorf("entry for %s has no run ID", entry.Identity)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure archive bucket %q: %w", s.bucket, err)
	}

	content, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	key := ObjectKey(s.prefix, entry)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"identity": entry.Identity.Key(),
			"outcome":  outcomeOf(entry),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// ObjectKey returns prefix/owner/name/<run id>.json.
func ObjectKey(prefix string, entry *schema.CacheEntry) string {
	return path.Join(strings.Trim(prefix, "/"), entry.Identity.Owner, entry.Identity.Name, entry.RunID+".json")
}

func outcomeOf(entry *schema.CacheEntry) string {
	if entry.Failure != nil {
		return schema.RunFailed
	}
	return schema.RunSucceeded
}
