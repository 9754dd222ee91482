package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AnTengye/pdfimages/config"
	"github.com/AnTengye/pdfimages/model"
	"github.com/AnTengye/pdfimages/pkg/logger"
)

// RemoteMirror uploads a local file to off-box object storage or a CDN.
type RemoteMirror interface {
	Name() string
	Upload(ctx context.Context, path string) (*model.MirrorRecord, error)
}

// NewMirror builds the mirror selected in cfg. A provider without
// credentials yields a mirror whose every upload fails with
// ErrMirrorNotConfigured.
func NewMirror(ctx context.Context, cfg *config.Config) (RemoteMirror, error) {
	var (
		mirror RemoteMirror
		err    error
	)
	mc := &cfg.Mirror

	switch {
	case mc.Provider == config.MirrorNone:
		mirror = disabledMirror{provider: config.MirrorNone}
	case !cfg.MirrorConfigured():
		mirror = disabledMirror{provider: mc.Provider}
	case mc.Provider == config.MirrorCloudinary:
		mirror, err = NewCloudinaryMirror(&mc.Cloudinary)
	case mc.Provider == config.MirrorMinio:
		var mm *MinioMirror
		if mm, err = NewMinioMirror(&mc.Minio); err != nil {
			return nil, err
		}
		if mc.Minio.CreateBucket {
			if berr := mm.EnsureBucket(ctx); berr != nil {
				logger.Warn(ctx, "minio bucket check failed", "bucket", mc.Minio.Bucket, "error", berr)
			}
		}
		mirror = mm
	case mc.Provider == config.MirrorGCS:
		mirror, err = NewGCSMirror(ctx, &mc.GCS)
	default:
		return nil, fmt.Errorf("unknown mirror provider %q", mc.Provider)
	}
	if err != nil {
		return nil, err
	}

	if mc.MaxRetries > 0 {
		maxRetries := uint64(mc.MaxRetries)
		mirror = NewRetryingMirror(mirror, func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = mc.Timeout
			return backoff.WithMaxRetries(b, maxRetries)
		})
	}
	if mc.DedupeCacheSize > 0 {
		mirror, err = NewDedupMirror(mirror, mc.DedupeCacheSize)
		if err != nil {
			return nil, err
		}
	}
	return mirror, nil
}

type disabledMirror struct {
	provider string
}

func (m disabledMirror) Name() string { return m.provider }

func (m disabledMirror) Upload(context.Context, string) (*model.MirrorRecord, error) {
	return nil, &MirrorError{Provider: m.provider, Err: ErrMirrorNotConfigured}
}

// RetryingMirror retries failed uploads with backoff. Missing credentials
// are not retried.
type RetryingMirror struct {
	delegate     RemoteMirror
	buildBackoff func() backoff.BackOff
}

func NewRetryingMirror(delegate RemoteMirror, factory func() backoff.BackOff) *RetryingMirror {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 3 * time.Second
			return b
		}
	}
	return &RetryingMirror{delegate: delegate, buildBackoff: factory}
}

func (m *RetryingMirror) Name() string { return m.delegate.Name() }

func (m *RetryingMirror) Upload(ctx context.Context, path string) (*model.MirrorRecord, error) {
	b := backoff.WithContext(m.buildBackoff(), ctx)
	return backoff.RetryWithData(func() (*model.MirrorRecord, error) {
		record, err := m.delegate.Upload(ctx, path)
		if err != nil && errors.Is(err, ErrMirrorNotConfigured) {
			return nil, backoff.Permanent(err)
		}
		return record, err
	}, b)
}

// DedupMirror uploads each filename once and answers later calls from a
// bounded in-memory set of records. Images are never mutated after
// extraction, so a record stays valid for the life of the process.
type DedupMirror struct {
	delegate RemoteMirror
	seen     *lru.Cache[string, model.MirrorRecord]
}

func NewDedupMirror(delegate RemoteMirror, size int) (*DedupMirror, error) {
	seen, err := lru.New[string, model.MirrorRecord](size)
	if err != nil {
		return nil, fmt.Errorf("mirror dedupe cache init: %w", err)
	}
	return &DedupMirror{delegate: delegate, seen: seen}, nil
}

func (m *DedupMirror) Name() string { return m.delegate.Name() }

func (m *DedupMirror) Upload(ctx context.Context, path string) (*model.MirrorRecord, error) {
	key := filepath.Base(path)
	if record, ok := m.seen.Get(key); ok {
		return &record, nil
	}
	record, err := m.delegate.Upload(ctx, path)
	if err != nil {
		return nil, err
	}
	m.seen.Add(key, *record)
	return record, nil
}

// Seen reports whether filename has already been mirrored.
func (m *DedupMirror) Seen(filename string) bool {
	return m.seen.Contains(filename)
}

var (
	_ RemoteMirror = disabledMirror{}
	_ RemoteMirror = (*RetryingMirror)(nil)
	_ RemoteMirror = (*DedupMirror)(nil)
)

// fileFormat is the extension of path without the dot.
func fileFormat(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// contentType sniffs the MIME type of a local file.
func contentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
