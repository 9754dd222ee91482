package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/AnTengye/pdfimages/config"
	"github.com/AnTengye/pdfimages/model"
)

// GCSMirror writes images to a Google Cloud Storage bucket. Objects are
// created only if absent, so repeated mirroring of one image is a no-op.
type GCSMirror struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSMirror(ctx context.Context, cfg *config.GCSConfig, opts ...option.ClientOption) (*GCSMirror, error) {
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSMirror{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (m *GCSMirror) Name() string { return config.MirrorGCS }

func (m *GCSMirror) Upload(ctx context.Context, localPath string) (*model.MirrorRecord, error) {
	objectName := gcsObjectName(m.prefix, filepath.Base(localPath))
	record := &model.MirrorRecord{
		Provider: m.Name(),
		PublicID: objectName,
		URL:      gcsPublicURL(m.bucket, objectName),
		Format:   fileFormat(localPath),
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, &MirrorError{Provider: m.Name(), Err: err}
	}
	defer f.Close()

	w := m.client.Bucket(m.bucket).Object(objectName).
		If(storage.Conditions{DoesNotExist: true}).
		NewWriter(ctx)
	w.ContentType = contentType(localPath)

	n, err := io.Copy(w, f)
	if err != nil {
		_ = w.Close()
		if alreadyExists(err) {
			return record, nil
		}
		return nil, &MirrorError{Provider: m.Name(), Err: fmt.Errorf("failed to write object: %w", err)}
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			return record, nil
		}
		return nil, &MirrorError{Provider: m.Name(), Err: fmt.Errorf("failed to finalize object: %w", err)}
	}
	record.Bytes = n
	return record, nil
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func gcsObjectName(prefix, filename string) string {
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}

func gcsPublicURL(bucket, objectName string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, objectName)
}
