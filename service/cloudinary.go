package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/AnTengye/pdfimages/config"
	"github.com/AnTengye/pdfimages/model"
)

// CloudinaryMirror uploads images to a Cloudinary media library.
type CloudinaryMirror struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryMirror(cfg *config.CloudinaryConfig) (*CloudinaryMirror, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	return &CloudinaryMirror{cld: cld, folder: cfg.Folder}, nil
}

func (m *CloudinaryMirror) Name() string { return config.MirrorCloudinary }

func (m *CloudinaryMirror) Upload(ctx context.Context, path string) (*model.MirrorRecord, error) {
	resp, err := m.cld.Upload.Upload(ctx, path, uploader.UploadParams{Folder: m.folder})
	if err != nil {
		return nil, &MirrorError{Provider: m.Name(), Err: err}
	}
	return cloudinaryRecord(resp)
}

// cloudinaryRecord converts an upload result. Cloudinary reports API
// failures in the body with a nil transport error.
func cloudinaryRecord(resp *uploader.UploadResult) (*model.MirrorRecord, error) {
	if resp == nil {
		return nil, &MirrorError{Provider: config.MirrorCloudinary, Err: errors.New("empty upload result")}
	}
	if resp.Error.Message != "" {
		return nil, &MirrorError{Provider: config.MirrorCloudinary, Err: errors.New(resp.Error.Message)}
	}
	url := resp.SecureURL
	if url == "" {
		url = resp.URL
	}
	return &model.MirrorRecord{
		Provider: config.MirrorCloudinary,
		PublicID: resp.PublicID,
		URL:      url,
		Format:   resp.Format,
		Bytes:    int64(resp.Bytes),
	}, nil
}
