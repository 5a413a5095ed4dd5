package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/akabaki/saas-ui/internal/models"
)

// MinioConfig locates the bucket artifacts are mirrored to.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	Region    string
}

// ObjectClient is the subset of *minio.Client used by MinioMirror.
type ObjectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioMirror copies artifacts into an S3-compatible bucket.
type MinioMirror struct {
	client  ObjectClient
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewMinioMirror connects to the endpoint and makes sure the bucket exists.
func NewMinioMirror(ctx context.Context, cfg MinioConfig) (*MinioMirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	m := NewMinioMirrorWithClient(client, cfg.Bucket, cfg.Prefix)
	if err := m.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMinioMirrorWithClient wraps an existing client.
func NewMinioMirrorWithClient(client ObjectClient, bucket, prefix string) *MinioMirror {
	return &MinioMirror{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		timeout: 30 * time.Second,
	}
}

func (m *MinioMirror) ensureBucket(ctx context.Context, region string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", m.bucket, err)
	}
	fmt.Printf("[Mirror] Created bucket %s\n", m.bucket)
	return nil
}

// ObjectName returns the key an artifact is stored under.
func (m *MinioMirror) ObjectName(info *models.FileInfo) string {
	return path.Join(m.prefix, info.ID, info.Name)
}

// Put uploads one artifact.
func (m *MinioMirror) Put(ctx context.Context, info *models.FileInfo, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := m.client.PutObject(ctx, m.bucket, m.ObjectName(info), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  info.ContentType,
			UserMetadata: map[string]string{"artifact-id": info.ID},
		})
	if err != nil {
		return fmt.Errorf("failed to upload artifact %s: %w", info.ID, err)
	}
	return nil
}

// Remove deletes one artifact.
func (m *MinioMirror) Remove(ctx context.Context, info *models.FileInfo) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.client.RemoveObject(ctx, m.bucket, m.ObjectName(info), minio.RemoveObjectOptions{})
}

// MirroredStore writes artifacts locally and copies them to a MinioMirror.
// Mirror failures are logged and never fail the local operation.
type MirroredStore struct {
	Store
	mirror *MinioMirror
}

// NewMirroredStore wraps local so that every saved artifact is mirrored.
func NewMirroredStore(local Store, mirror *MinioMirror) *MirroredStore {
	return &MirroredStore{Store: local, mirror: mirror}
}

func (s *MirroredStore) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	info, err := s.Store.SaveBytes(name, data)
	if err != nil {
		return nil, err
	}
	if err := s.mirror.Put(context.Background(), info, data); err != nil {
		fmt.Printf("[Mirror] Warning: %v\n", err)
	}
	return info, nil
}

func (s *MirroredStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return s.SaveBytes(name, data)
}

func (s *MirroredStore) Delete(id string) error {
	info, err := s.Store.Get(id)
	if err != nil {
		return err
	}
	if err := s.Store.Delete(id); err != nil {
		return err
	}
	if err := s.mirror.Remove(context.Background(), info); err != nil {
		fmt.Printf("[Mirror] Warning: removing %s: %v\n", id, err)
	}
	return nil
}
