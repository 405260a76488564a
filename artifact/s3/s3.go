// Package s3 implements core.ArtifactStore on S3 compatible object storage
// (AWS S3, MinIO, Azure gateways) using minio-go.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/secboard/core"
)

const metaFileName = "Filename"

// Config selects the bucket and credentials.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Prefix is prepended to every object key.
	Prefix string
	// CreateBucket creates the bucket when missing.
	CreateBucket bool
}

// Validate reports missing settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("s3 endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("s3 bucket is required")
	}
	return nil
}

// Store keeps each file as one object under <prefix><threadID>/<fileID>. The
// original file name travels as user metadata.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the configured endpoint and, when requested, creates the
// bucket.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	s, err := NewWithClient(client, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return nil, err
	}

	if cfg.CreateBucket {
		if err := s.ensureBucket(ctx, cfg.Region); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *minio.Client, bucket, prefix string) (*Store, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket missing: %s", s.bucket)
	}
	return nil
}

// Save uploads data as a new object.
func (s *Store) Save(ctx context.Context, threadID, name, contentType string, data []byte) (core.File, error) {
	id := core.NewID()

	info, err := s.client.PutObject(ctx, s.bucket, s.key(threadID, id), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{metaFileName: name},
	})
	if err != nil {
		return core.File{}, fmt.Errorf("put %s: %w", name, err)
	}

	created := info.LastModified
	if created.IsZero() {
		created = time.Now().UTC()
	}

	return core.File{
		ID:          id,
		ThreadID:    threadID,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   created,
	}, nil
}

// Get downloads the object.
func (s *Store) Get(ctx context.Context, threadID, fileID string) (core.File, []byte, error) {
	f, err := s.Stat(ctx, threadID, fileID)
	if err != nil {
		return core.File{}, nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.key(threadID, fileID), minio.GetObjectOptions{})
	if err != nil {
		return core.File{}, nil, mapError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return core.File{}, nil, mapError(err)
	}

	return f, data, nil
}

// Stat returns the object's metadata.
func (s *Store) Stat(ctx context.Context, threadID, fileID string) (core.File, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(threadID, fileID), minio.StatObjectOptions{})
	if err != nil {
		return core.File{}, mapError(err)
	}
	return s.toFile(threadID, fileID, info), nil
}

// List returns the thread's files ordered by creation time.
func (s *Store) List(ctx context.Context, threadID string) ([]core.File, error) {
	prefix := s.key(threadID, "")

	var out []core.File
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, mapError(obj.Err)
		}

		fileID := strings.TrimPrefix(obj.Key, prefix)

		// listings carry no user metadata
		f, err := s.Stat(ctx, threadID, fileID)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

// Delete removes the object or returns core.ErrFileNotFound.
func (s *Store) Delete(ctx context.Context, threadID, fileID string) error {
	if _, err := s.Stat(ctx, threadID, fileID); err != nil {
		return err
	}
	return mapError(s.client.RemoveObject(ctx, s.bucket, s.key(threadID, fileID), minio.RemoveObjectOptions{}))
}

func (s *Store) key(threadID, fileID string) string {
	return s.prefix + threadID + "/" + fileID
}

func (s *Store) toFile(threadID, fileID string, info minio.ObjectInfo) core.File {
	return core.File{
		ID:          fileID,
		ThreadID:    threadID,
		Name:        lookupFold(info.UserMetadata, metaFileName),
		ContentType: info.ContentType,
		Size:        info.Size,
		CreatedAt:   info.LastModified,
	}
}

func lookupFold(m map[string]string, key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", core.ErrFileNotFound, resp.Key)
	}
	return err
}
