package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cvtailor/cvtailor/internal/config"
	"github.com/cvtailor/cvtailor/internal/domain"
)

const snapshotPrefix = "snapshots"

// ErrSnapshotNotFound is returned when no object exists under a key
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ValidSnapshotKey reports whether key names archived markup
func ValidSnapshotKey(key string) bool {
	return strings.HasPrefix(key, snapshotPrefix+"/") &&
		path.Ext(key) == ".html" &&
		path.Clean(key) == key
}

// SnapshotStore archives the page markup of scans that need a second look
// (empty results and container failures) in an S3-compatible bucket.
type SnapshotStore struct {
	client     *minio.Client
	bucketName string
	region     string
	presignTTL time.Duration
}

// NewSnapshotStore creates a new MinIO-backed snapshot store
func NewSnapshotStore(cfg config.S3Config) (*SnapshotStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	return &SnapshotStore{
		client:     client,
		bucketName: cfg.Bucket,
		region:     cfg.Region,
		presignTTL: 24 * time.Hour,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *SnapshotStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("checking bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
	}

	return nil
}

// SnapshotKey returns the object key of a scan's markup
func SnapshotKey(host string, scannedAt time.Time, scanID uuid.UUID) string {
	if host == "" {
		host = "unknown"
	}
	return path.Join(snapshotPrefix, host, scannedAt.UTC().Format("2006-01-02"), scanID.String()+".html")
}

// Archive stores the scanned markup next to the scan result and returns the
// markup's object key.
func (s *SnapshotStore) Archive(ctx context.Context, record *domain.ScanRecord, markup string, result *domain.ScanResult) (string, error) {
	key := SnapshotKey(record.Host, record.ScannedAt, record.ID)

	if err := s.put(ctx, key, []byte(markup), "text/html; charset=utf-8"); err != nil {
		return "", err
	}

	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return "", fmt.Errorf("encoding scan result: %w", err)
		}
		if err := s.put(ctx, resultKey(key), data, "application/json"); err != nil {
			return "", err
		}
	}

	return key, nil
}

// Load returns the markup stored under key
func (s *SnapshotStore) Load(ctx context.Context, key string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("getting object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", ErrSnapshotNotFound
		}
		return "", fmt.Errorf("reading object: %w", err)
	}
	return string(data), nil
}

// LoadResult returns the scan result archived with the markup under key
func (s *SnapshotStore) LoadResult(ctx context.Context, key string) (*domain.ScanResult, error) {
	data, err := s.Load(ctx, resultKey(key))
	if err != nil {
		return nil, err
	}
	var result domain.ScanResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("decoding scan result: %w", err)
	}
	return &result, nil
}

// Delete removes a snapshot and its result
func (s *SnapshotStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucketName, resultKey(key), minio.RemoveObjectOptions{})
}

// PresignedURL returns a temporary download URL for a snapshot
func (s *SnapshotStore) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("generating presigned URL: %w", err)
	}
	return u.String(), nil
}

// List returns the markup keys archived for a host
func (s *SnapshotStore) List(ctx context.Context, host string) ([]string, error) {
	var keys []string

	objectCh := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    path.Join(snapshotPrefix, host) + "/",
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, object.Err
		}
		if path.Ext(object.Key) == ".html" {
			keys = append(keys, object.Key)
		}
	}

	return keys, nil
}

func (s *SnapshotStore) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func resultKey(snapshotKey string) string {
	return snapshotKey[:len(snapshotKey)-len(path.Ext(snapshotKey))] + ".json"
}
