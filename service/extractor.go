package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// RawImage is an embedded image as reported by the extraction library.
type RawImage struct {
	Page  int // 1-based
	Index int // 1-based, per page
	Ext   string
	Data  []byte
}

// DocumentImageExtractor pulls embedded raster images out of a stored document.
// Images are returned in ascending page order, then per-page order.
type DocumentImageExtractor interface {
	Extract(ctx context.Context, path string) ([]RawImage, error)
}

// PDFExtractor extracts images with pdfcpu. Bytes are returned as stored in
// the PDF; no transcoding happens here.
type PDFExtractor struct {
	relaxed bool
}

func NewPDFExtractor(relaxed bool) *PDFExtractor {
	return &PDFExtractor{relaxed: relaxed}
}

func (e *PDFExtractor) configuration() *pdfmodel.Configuration {
	conf := pdfmodel.NewDefaultConfiguration()
	if e.relaxed {
		conf.ValidationMode = pdfmodel.ValidationRelaxed
	}
	return conf
}

// Extract opens the PDF at path and returns every embedded image.
func (e *PDFExtractor) Extract(ctx context.Context, path string) ([]RawImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	pages, err := api.ExtractImagesRaw(f, nil, e.configuration())
	if err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}

	var found []pdfmodel.Image
	for _, byObj := range pages {
		for _, img := range byObj {
			found = append(found, img)
		}
	}
	// pdfcpu hands back maps; order by page then object number.
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].PageNr != found[j].PageNr {
			return found[i].PageNr < found[j].PageNr
		}
		return found[i].ObjNr < found[j].ObjNr
	})

	images := make([]RawImage, 0, len(found))
	perPage := make(map[int]int)
	for _, img := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if img.Reader == nil {
			continue
		}
		data, err := io.ReadAll(img)
		if err != nil {
			return nil, fmt.Errorf("read image %d on page %d: %w", img.ObjNr, img.PageNr, err)
		}
		perPage[img.PageNr]++
		images = append(images, RawImage{
			Page:  img.PageNr,
			Index: perPage[img.PageNr],
			Ext:   normalizeExt(img.FileType, data),
			Data:  data,
		})
	}

	return images, nil
}

// normalizeExt lowercases the reported format and falls back to sniffing the
// bytes when the library reports none.
func normalizeExt(reported string, data []byte) string {
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(reported), "."))
	if ext != "" {
		return ext
	}
	if sniffed := strings.TrimPrefix(mimetype.Detect(data).Extension(), "."); sniffed != "" {
		return sniffed
	}
	return "bin"
}
