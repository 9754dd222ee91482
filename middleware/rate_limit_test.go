package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/pdfimages/config"
)

func newRateLimitedRouter(cfg config.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID())
	router.Use(RateLimit(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	return router
}

func TestRateLimitMiddleware(t *testing.T) {
	// slow refill so only the burst is available
	router := newRateLimitedRouter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 5})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: Expected status 200, got %d", i+1, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
}

func TestRateLimitDifferentIPs(t *testing.T) {
	router := newRateLimitedRouter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 2})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.2:1000"
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Different IP should not be rate limited, got %d", w.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	router := newRateLimitedRouter(config.RateLimitConfig{})

	for i := 0; i < 50; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Request %d: Expected status 200 with limiter disabled, got %d", i+1, w.Code)
		}
	}
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := NewRateLimiter(60, 1)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("a") {
		t.Fatal("First request should be allowed")
	}
	if limiter.Allow("a") {
		t.Fatal("Second immediate request should be denied")
	}

	now = now.Add(time.Second)
	if !limiter.Allow("a") {
		t.Error("Request after refill interval should be allowed")
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(60, 1)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")
	limiter.Allow("b")
	if limiter.size() != 2 {
		t.Fatalf("Expected 2 tracked clients, got %d", limiter.size())
	}

	now = now.Add(limiterTTL + limiterCleanup)
	limiter.Allow("c")
	if limiter.size() != 1 {
		t.Errorf("Expected idle clients evicted, got %d tracked", limiter.size())
	}
}
