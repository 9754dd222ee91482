package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AnTengye/pdfimages/config"
	"github.com/AnTengye/pdfimages/model"
	"github.com/google/uuid"
)

// ImageStore owns the two working directories: the temp directory where
// uploads are spooled and the output directory where images accumulate.
// All shared state lives on disk; the store itself is immutable.
type ImageStore struct {
	tempDir   string
	outputDir string
}

func NewImageStore(cfg *config.StorageConfig) *ImageStore {
	return &ImageStore{
		tempDir:   filepath.Clean(cfg.TempDir),
		outputDir: filepath.Clean(cfg.OutputDir),
	}
}

// EnsureDirs creates both directories if they are absent.
func (s *ImageStore) EnsureDirs() error {
	for _, dir := range []string{s.tempDir, s.outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (s *ImageStore) TempDir() string   { return s.tempDir }
func (s *ImageStore) OutputDir() string { return s.outputDir }

// AbsOutputDir returns the absolute output directory, or the configured
// value when it cannot be resolved.
func (s *ImageStore) AbsOutputDir() string {
	if abs, err := filepath.Abs(s.outputDir); err == nil {
		return abs
	}
	return s.outputDir
}

// AbsTempDir returns the absolute temp directory.
func (s *ImageStore) AbsTempDir() string {
	if abs, err := filepath.Abs(s.tempDir); err == nil {
		return abs
	}
	return s.tempDir
}

// Spool writes an uploaded document into the temp directory under
// <token>_<name>. The returned cleanup removes it and must be called exactly
// once; a file that is already gone is not an error.
func (s *ImageStore) Spool(name string, r io.Reader) (*model.UploadedDocument, func() error, error) {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	storageName := uuid.New().String() + "_" + base
	path := filepath.Join(s.tempDir, storageName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("create temp document: %w", err)
	}

	cleanup := func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = cleanup()
		if copyErr != nil {
			return nil, nil, fmt.Errorf("write temp document: %w", copyErr)
		}
		return nil, nil, fmt.Errorf("close temp document: %w", closeErr)
	}

	doc := &model.UploadedDocument{
		OriginalName: name,
		StorageName:  storageName,
		Path:         path,
		Size:         n,
	}
	return doc, cleanup, nil
}

// Write stores an image in the output directory. Existing files are never
// overwritten.
func (s *ImageStore) Write(filename string, data []byte) error {
	path, ok := s.safePath(filename)
	if !ok {
		return fmt.Errorf("invalid image filename %q", filename)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create image %s: %w", filename, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write image %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close image %s: %w", filename, err)
	}
	return nil
}

// Stat returns file info of an image in the output directory.
func (s *ImageStore) Stat(filename string) (os.FileInfo, error) {
	path, ok := s.safePath(filename)
	if !ok {
		return nil, ErrNotFound
	}
	return os.Stat(path)
}

// Resolve returns the on-disk path of a stored image. Names that are not a
// single path element, or that do not name a regular file, yield ErrNotFound.
func (s *ImageStore) Resolve(filename string) (string, os.FileInfo, error) {
	path, ok := s.safePath(filename)
	if !ok {
		return "", nil, ErrNotFound
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, ErrNotFound
	}
	return path, info, nil
}

// List returns the regular files of the output directory sorted by name,
// following symlinks the way Resolve does.
// exists is false when the directory itself is missing.
func (s *ImageStore) List() (images []model.StoredImage, exists bool, err error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	images = make([]model.StoredImage, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(s.outputDir, entry.Name())
		// symlinks are followed, matching Resolve
		info, err := os.Stat(path)
		if err != nil {
			// removed since ReadDir, or a dangling link
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, true, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		images = append(images, model.StoredImage{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			Path:      path,
		})
	}
	sort.Slice(images, func(i, j int) bool {
		return images[i].Filename < images[j].Filename
	})
	return images, true, nil
}

func (s *ImageStore) safePath(name string) (string, bool) {
	if name == "" || name == "." || name == ".." {
		return "", false
	}
	if strings.ContainsAny(name, "/\\\x00") || filepath.Base(name) != name {
		return "", false
	}
	path := filepath.Join(s.outputDir, name)
	rel, err := filepath.Rel(s.outputDir, path)
	if err != nil || rel != name {
		return "", false
	}
	return path, true
}
