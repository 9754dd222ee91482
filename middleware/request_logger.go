package middleware

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/AnTengye/pdfimages/pkg/logger"
)

// RequestLogger writes one access log line per request. Paths listed in
// quiet (health checks, scrapes) are logged at debug level on success.
func RequestLogger(quiet ...string) gin.HandlerFunc {
	quietPaths := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		quietPaths[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if route := c.FullPath(); route != "" && route != path {
			attrs = append(attrs, "route", route)
		}
		if size := c.Writer.Size(); size > 0 {
			attrs = append(attrs, "response_size", humanize.Bytes(uint64(size)))
		}
		if query != "" {
			attrs = append(attrs, "query", query)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		log := logger.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			log.Error("request completed", attrs...)
		case status >= 400:
			log.Warn("request completed", attrs...)
		default:
			level := slog.LevelInfo
			if _, ok := quietPaths[path]; ok {
				level = slog.LevelDebug
			}
			log.Log(c.Request.Context(), level, "request completed", attrs...)
		}
	}
}
