package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetrics("test", reg)
	if err != nil {
		t.Fatalf("NewHTTPMetrics failed: %v", err)
	}

	router := gin.New()
	router.Use(Metrics(m))
	router.GET("/extract-images/:filename", func(c *gin.Context) {
		c.String(http.StatusOK, "bytes")
	})

	for _, path := range []string{"/extract-images/a.png", "/extract-images/b.png", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/extract-images/:filename", "200")); got != 2 {
		t.Errorf("Expected 2 matched requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("Expected 1 unmatched request, got %v", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Errorf("Expected no requests in flight, got %v", got)
	}
}

func TestNewHTTPMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewHTTPMetrics("dup", reg); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := NewHTTPMetrics("dup", reg); err == nil {
		t.Error("Expected error registering the same metrics twice")
	}
}

func TestMetricsMiddlewareNil(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(Metrics(nil))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ok", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
}
