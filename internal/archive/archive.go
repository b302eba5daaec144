// Package archive stores synthesis run reports in S3-compatible storage.
// When no bucket is configured, NoopArchiver is used and reports are dropped,
// keeping the service in local-only mode.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/licenseiq/licenseiq/internal/config"
	"github.com/licenseiq/licenseiq/internal/types"
)

// Archiver persists run reports.
type Archiver interface {
	Archive(ctx context.Context, report types.RunReport) error
}

// s3Client defines the minimal minio.Client operations used by S3Archiver.
type s3Client interface {
	PutObject(ctx context.Context, bucket, objectName string, body io.Reader, size int64, contentType string) error
}

// minioClientWrapper adapts *minio.Client to s3Client.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, body io.Reader, size int64, contentType string) error {
	_, err := w.client.PutObject(ctx, bucket, objectName, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// S3Archiver writes run reports as JSON objects.
type S3Archiver struct {
	client s3Client
	bucket string
}

// Archive uploads report under its run key.
func (a *S3Archiver) Archive(ctx context.Context, report types.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}

	key := ObjectKey(report.ContractID, report.ExtractionRunID, report.RunID)
	if err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("upload run report to S3: %w", err)
	}
	return nil
}

// NoopArchiver is used when S3 storage is not configured.
type NoopArchiver struct{}

// Archive is a no-op when S3 is not configured.
func (NoopArchiver) Archive(ctx context.Context, report types.RunReport) error {
	return nil
}

// New creates the appropriate Archiver based on configuration.
// Returns NoopArchiver when bucket is empty, S3Archiver otherwise.
func New(cfg config.ArchiveConfig) (Archiver, error) {
	if cfg.Bucket == "" {
		return NoopArchiver{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	endpoint := stripScheme(cfg.Endpoint, &useSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Archiver{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
	}, nil
}

// stripScheme removes an http:// or https:// prefix from endpoint, which
// minio.New rejects. An explicit http:// scheme turns SSL off.
func stripScheme(endpoint string, useSSL *bool) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		*useSSL = true
		return strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		*useSSL = false
		return strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}

// ObjectKey returns the object key of a run report.
// Convention: runs/{contract_id}/{extraction_run_id}/{run_id}.json
func ObjectKey(contractID, extractionRunID, runID string) string {
	return path.Join("runs", contractID, extractionRunID, runID+".json")
}
