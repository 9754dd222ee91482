package service

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/AnTengye/pdfimages/config"
	"github.com/AnTengye/pdfimages/model"
	"github.com/AnTengye/pdfimages/pkg/logger"
)

// ImageService runs the upload, retrieval and inventory workflows on top of
// an ImageStore, an extractor and a remote mirror.
type ImageService struct {
	store         *ImageStore
	extractor     DocumentImageExtractor
	mirror        RemoteMirror
	observer      Observer
	documentExt   string
	mirrorTimeout time.Duration
	newToken      func() string
	now           func() time.Time
	statImage     func(filename string) (os.FileInfo, error)
}

type Option func(*ImageService)

func WithObserver(o Observer) Option {
	return func(s *ImageService) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTokenSource replaces the generator of per-image uniqueness tokens.
func WithTokenSource(fn func() string) Option {
	return func(s *ImageService) {
		if fn != nil {
			s.newToken = fn
		}
	}
}

// WithImageCheck replaces the existence check run on every image right
// after it is written.
func WithImageCheck(stat func(filename string) (os.FileInfo, error)) Option {
	return func(s *ImageService) {
		if stat != nil {
			s.statImage = stat
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ImageService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewImageService(cfg *config.Config, store *ImageStore, extractor DocumentImageExtractor, mirror RemoteMirror, opts ...Option) *ImageService {
	if mirror == nil {
		mirror = disabledMirror{provider: config.MirrorNone}
	}
	s := &ImageService{
		store:         store,
		extractor:     extractor,
		mirror:        mirror,
		observer:      nopObserver{},
		documentExt:   strings.ToLower(cfg.Extract.DocumentExt),
		mirrorTimeout: cfg.Mirror.Timeout,
		newToken:      func() string { return uuid.New().String() },
		now:           time.Now,
	}
	s.statImage = store.Stat
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ImageService) Store() *ImageStore { return s.store }

// ValidateDocumentName rejects names that do not carry the document extension.
func (s *ImageService) ValidateDocumentName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalidInput("missing filename")
	}
	if !strings.HasSuffix(strings.ToLower(name), s.documentExt) {
		return invalidInput("unsupported extension in " + name)
	}
	return nil
}

// ExtractUpload spools the document, extracts its images into the output
// directory and returns their filenames in extraction order. The spooled
// document is removed on every return path. Images written before a failure
// are kept.
func (s *ImageService) ExtractUpload(ctx context.Context, name string, r io.Reader) (files []string, err error) {
	if err := s.ValidateDocumentName(name); err != nil {
		return nil, err
	}
	ctx = logger.WithDocument(ctx, name)

	doc, cleanup, err := s.store.Spool(name, r)
	if err != nil {
		return nil, processingErr("save upload", err)
	}
	defer func() {
		cerr := cleanup()
		s.observer.RecordCleanup(cerr)
		if cerr != nil {
			logger.Warn(ctx, "failed to delete temp document", "path", doc.Path, "error", cerr)
			return
		}
		logger.Debug(ctx, "temp document deleted", "path", doc.Path)
	}()
	logger.Info(ctx, "document received", "storage_name", doc.StorageName, "size", humanize.Bytes(uint64(doc.Size)))

	start := s.now()
	defer func() {
		s.observer.RecordExtraction(s.now().Sub(start), len(files), err)
	}()

	raws, err := s.extractor.Extract(ctx, doc.Path)
	if err != nil {
		return nil, processingErr("extract images", err)
	}

	files = make([]string, 0, len(raws))
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return nil, processingErr("extract images", err)
		}
		img := model.ExtractedImage{
			PageIndex:  raw.Page,
			ImageIndex: raw.Index,
			Token:      s.newToken(),
			Ext:        raw.Ext,
			Data:       raw.Data,
		}
		filename := img.Filename()
		if err := s.store.Write(filename, img.Data); err != nil {
			return nil, processingErr("save image", err)
		}

		imgCtx := logger.WithImage(ctx, filename)
		info, statErr := s.statImage(filename)
		if statErr != nil {
			s.observer.RecordImageSkipped()
			logger.Warn(imgCtx, "image missing after write, skipped", "error", statErr)
			continue
		}
		logger.Info(imgCtx, "saved image",
			"page", img.PageIndex,
			"index", img.ImageIndex,
			"bytes", info.Size(),
			"size", humanize.Bytes(uint64(info.Size())),
		)
		files = append(files, filename)
	}

	logger.Info(ctx, "extraction complete", "images", len(files), "output_folder", s.store.AbsOutputDir())
	return files, nil
}

// Resolve returns the local path of a stored image. When the image exists
// it is handed to the remote mirror first; mirror failures are logged and
// otherwise ignored.
func (s *ImageService) Resolve(ctx context.Context, filename string) (string, error) {
	path, info, err := s.store.Resolve(filename)
	if err != nil {
		return "", err
	}
	s.mirrorImage(logger.WithImage(ctx, filename), path, info.Size())
	return path, nil
}

func (s *ImageService) mirrorImage(ctx context.Context, path string, size int64) {
	if s.mirrorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.mirrorTimeout)
		defer cancel()
	}

	start := s.now()
	record, err := s.mirror.Upload(ctx, path)
	s.observer.RecordMirror(s.mirror.Name(), s.now().Sub(start), size, err)
	if err != nil {
		logger.Warn(ctx, "mirror upload failed", "provider", s.mirror.Name(), "error", err)
		return
	}
	logger.Info(ctx, "mirror upload succeeded",
		"provider", record.Provider,
		"public_id", record.PublicID,
		"url", record.URL,
		"format", record.Format,
		"size", humanize.Bytes(uint64(record.Bytes)),
	)
}

// List returns the inventory of the output directory.
func (s *ImageService) List(ctx context.Context) ([]model.StoredImage, bool, error) {
	images, exists, err := s.store.List()
	if err != nil {
		logger.Error(ctx, "failed to list images", "error", err)
		return nil, exists, err
	}
	logger.Debug(ctx, "listed images", "count", len(images), "exists", exists)
	return images, exists, nil
}
