package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AnTengye/pdfimages/pkg/logger"
)

func newRequestIDRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		ctxID, _ := c.Request.Context().Value(logger.RequestIDKey).(string)
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c), "ctx_id": ctxID})
	})
	return router
}

func TestRequestIDMiddleware(t *testing.T) {
	router := newRequestIDRouter()

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	responseID := w.Header().Get("X-Request-ID")
	if _, err := uuid.Parse(responseID); err != nil {
		t.Errorf("Expected generated UUID request ID, got '%s'", responseID)
	}
	if !strings.Contains(w.Body.String(), `"ctx_id":"`+responseID+`"`) {
		t.Errorf("Expected request ID in request context, body: %s", w.Body.String())
	}
}

func TestRequestIDMiddlewareWithExistingID(t *testing.T) {
	router := newRequestIDRouter()

	existingID := "existing-request-id-123"
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", existingID)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	responseID := w.Header().Get("X-Request-ID")
	if responseID != existingID {
		t.Errorf("Expected request ID '%s', got '%s'", existingID, responseID)
	}
}

func TestRequestIDMiddlewareReplacesMalformedID(t *testing.T) {
	router := newRequestIDRouter()

	for _, bad := range []string{"has space", strings.Repeat("x", 200), "tab\tid"} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", bad)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if got := w.Header().Get("X-Request-ID"); got == bad {
			t.Errorf("Expected malformed ID %q to be replaced", bad)
		}
	}
}

func TestGetRequestIDEmpty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	requestID := GetRequestID(c)
	if requestID != "" {
		t.Errorf("Expected empty string, got '%s'", requestID)
	}
}
