package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AnTengye/pdfimages/config"
	"github.com/AnTengye/pdfimages/handler"
	"github.com/AnTengye/pdfimages/middleware"
	"github.com/AnTengye/pdfimages/service"
)

type emptyExtractor struct{}

func (emptyExtractor) Extract(context.Context, string) ([]service.RawImage, error) {
	return nil, nil
}

func setupTestRouter(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *service.ImageStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	cfg := config.Default()
	cfg.Storage.TempDir = filepath.Join(root, "temp")
	cfg.Storage.OutputDir = filepath.Join(root, "output_images")
	cfg.Mirror.Provider = config.MirrorNone
	if mutate != nil {
		mutate(cfg)
	}

	store := service.NewImageStore(&cfg.Storage)
	if err := store.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}

	reg := prometheus.NewRegistry()
	observer, err := service.NewPrometheusObserver(cfg.Metrics.Namespace, reg)
	if err != nil {
		t.Fatalf("NewPrometheusObserver failed: %v", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(cfg.Metrics.Namespace, reg)
	if err != nil {
		t.Fatalf("NewHTTPMetrics failed: %v", err)
	}
	mirror, err := service.NewMirror(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewMirror failed: %v", err)
	}

	svc := service.NewImageService(cfg, store, emptyExtractor{}, mirror, service.WithObserver(observer))
	return setupRouter(cfg, handler.NewImageHandler(svc, cfg.MaxUploadBytes()), httpMetrics, reg), store
}

func TestHealth(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected body %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("Expected no-store cache control, got '%s'", cc)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, store := setupTestRouter(t, nil)
	if err := store.Write("page_1_img_1_a.png", []byte("png")); err != nil {
		t.Fatal(err)
	}

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/extract-images/page_1_img_1_a.png", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"pdfimages_http_requests_total",
		"pdfimages_mirror_failures_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %s in metrics output", want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	router, _ := setupTestRouter(t, func(cfg *config.Config) {
		cfg.Metrics.Enabled = false
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 with metrics disabled, got %d", w.Code)
	}
}

func TestImageResponseIsCacheable(t *testing.T) {
	router, store := setupTestRouter(t, nil)
	if err := store.Write("page_1_img_1_a.jpg", []byte("jpeg")); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/extract-images/page_1_img_1_a.jpg", nil))
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("Expected immutable cache control, got '%s'", cc)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/extract-images/missing.jpg", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); strings.Contains(cc, "immutable") {
		t.Error("404 responses must not be cached")
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	req := httptest.NewRequest("OPTIONS", "/extract-images/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected allow-all origin, got '%s'", got)
	}
}

func TestUploadThroughRouterLeavesTempEmpty(t *testing.T) {
	router, store := setupTestRouter(t, nil)

	body := strings.NewReader("--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.pdf\"\r\nContent-Type: application/pdf\r\n\r\n%PDF-1.4\r\n--b--\r\n")
	req := httptest.NewRequest("POST", "/extract-images/", body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	entries, err := os.ReadDir(store.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty temp directory, got %d entries", len(entries))
	}
}
