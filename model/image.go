package model

import (
	"fmt"
	"strings"
)

// UploadedDocument is a document spooled into the temp directory for the
// duration of a single extraction.
type UploadedDocument struct {
	OriginalName string
	StorageName  string // <token>_<original name>
	Path         string
	Size         int64
}

// ExtractedImage is one raster image pulled out of a document.
type ExtractedImage struct {
	PageIndex  int    // 1-based
	ImageIndex int    // 1-based, per page
	Token      string // uniqueness token
	Ext        string // format extension without dot, e.g. "jpg"
	Data       []byte
}

// Filename returns page_<page>_img_<index>_<token>.<ext>
func (img ExtractedImage) Filename() string {
	return ImageFilename(img.PageIndex, img.ImageIndex, img.Token, img.Ext)
}

// ImageFilename builds the durable filename of an extracted image.
func ImageFilename(page, index int, token, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return fmt.Sprintf("page_%d_img_%d_%s.%s", page, index, token, ext)
}

// StoredImage is an inventory entry of the output directory.
type StoredImage struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Path      string `json:"path"`
}

// MirrorRecord describes a file uploaded to the remote mirror. It only lives
// for the duration of a request.
type MirrorRecord struct {
	Provider string `json:"provider"`
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
	Format   string `json:"format"`
	Bytes    int64  `json:"bytes"`
}

// ExtractResponse is the body returned by a successful upload.
type ExtractResponse struct {
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

// InventoryResponse is the body returned by the stored images listing.
type InventoryResponse struct {
	Message      string        `json:"message"`
	OutputFolder string        `json:"output_folder,omitempty"`
	Images       []StoredImage `json:"images"`
}
