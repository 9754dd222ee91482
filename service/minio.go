package service

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/AnTengye/pdfimages/config"
	"github.com/AnTengye/pdfimages/model"
)

// MinioMirror copies images into an S3-compatible bucket.
type MinioMirror struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioMirror(cfg *config.MinioConfig) (*MinioMirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioMirror{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

func (m *MinioMirror) Name() string { return config.MirrorMinio }

// EnsureBucket creates the bucket if it doesn't exist
func (m *MinioMirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.config.Region})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Upload puts the file under its base name, prefixed by the configured
// folder when one is set.
func (m *MinioMirror) Upload(ctx context.Context, localPath string) (*model.MirrorRecord, error) {
	objectName := m.objectName(filepath.Base(localPath))
	info, err := m.client.FPutObject(ctx, m.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return nil, &MirrorError{Provider: m.Name(), Err: fmt.Errorf("failed to upload file: %w", err)}
	}

	return &model.MirrorRecord{
		Provider: m.Name(),
		PublicID: objectName,
		URL:      m.GetPublicURL(objectName),
		Format:   fileFormat(localPath),
		Bytes:    info.Size,
	}, nil
}

func (m *MinioMirror) objectName(filename string) string {
	if m.config.Prefix == "" {
		return filename
	}
	return path.Join(m.config.Prefix, filename)
}

// GetPublicURL returns a public URL for the object (if bucket policy allows)
func (m *MinioMirror) GetPublicURL(objectName string) string {
	protocol := "http"
	if m.config.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, m.config.Endpoint, m.bucket, objectName)
}
