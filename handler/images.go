package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/pdfimages/model"
	"github.com/AnTengye/pdfimages/pkg/logger"
	"github.com/AnTengye/pdfimages/service"
)

type ImageHandler struct {
	images         *service.ImageService
	maxUploadBytes int64
}

func NewImageHandler(images *service.ImageService, maxUploadBytes int64) *ImageHandler {
	return &ImageHandler{
		images:         images,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload extracts every embedded image of an uploaded PDF
func (h *ImageHandler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"detail": fmt.Sprintf("File too large. Maximum upload size is %d bytes.", tooLarge.Limit),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	files, err := h.images.ExtractUpload(c.Request.Context(), header.Filename, file)
	if err != nil {
		var procErr *service.ProcessingError
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid file type. Please upload a PDF."})
		case errors.As(err, &procErr):
			logger.Error(c.Request.Context(), "pdf processing failed", "filename", header.Filename, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error processing PDF: " + procErr.Err.Error()})
		default:
			logger.Error(c.Request.Context(), "pdf processing failed", "filename", header.Filename, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error processing PDF: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, model.ExtractResponse{
		Message: "Images extracted successfully!",
		Files:   files,
	})
}

// Get serves a stored image, mirroring it remotely on the way out
func (h *ImageHandler) Get(c *gin.Context) {
	path, err := h.images.Resolve(c.Request.Context(), c.Param("filename"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Image not found"})
			return
		}
		logger.Error(c.Request.Context(), "failed to resolve image", "filename", c.Param("filename"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error reading image: " + err.Error()})
		return
	}

	// extracted images are written once and never change
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.File(path)
}

// ListStored reports every image in the output directory
func (h *ImageHandler) ListStored(c *gin.Context) {
	images, exists, err := h.images.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error listing images: " + err.Error()})
		return
	}

	if !exists {
		c.JSON(http.StatusOK, model.InventoryResponse{
			Message: "Output folder does not exist",
			Images:  []model.StoredImage{},
		})
		return
	}

	c.JSON(http.StatusOK, model.InventoryResponse{
		Message:      fmt.Sprintf("Found %d stored images", len(images)),
		OutputFolder: h.images.Store().AbsOutputDir(),
		Images:       images,
	})
}
