package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/AnTengye/pdfimages/config"
	"github.com/AnTengye/pdfimages/handler"
	"github.com/AnTengye/pdfimages/middleware"
	"github.com/AnTengye/pdfimages/pkg/logger"
	"github.com/AnTengye/pdfimages/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load(os.Getenv("PDFIMAGES_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := service.NewImageStore(&cfg.Storage)
	if err := store.EnsureDirs(); err != nil {
		return err
	}
	slog.Info("storage ready",
		"temp_folder", store.AbsTempDir(),
		"output_folder", store.AbsOutputDir(),
	)
	slog.Info("remote mirror",
		"provider", cfg.Mirror.Provider,
		"configured", cfg.MirrorConfigured(),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer, err := service.NewPrometheusObserver(cfg.Metrics.Namespace, reg)
	if err != nil {
		return err
	}
	httpMetrics, err := middleware.NewHTTPMetrics(cfg.Metrics.Namespace, reg)
	if err != nil {
		return err
	}

	mirror, err := service.NewMirror(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init mirror: %w", err)
	}

	images := service.NewImageService(cfg, store,
		service.NewPDFExtractor(cfg.Extract.RelaxedValidation),
		mirror,
		service.WithObserver(observer),
	)
	imageHandler := handler.NewImageHandler(images, cfg.MaxUploadBytes())

	gin.SetMode(gin.ReleaseMode)
	router := setupRouter(cfg, imageHandler, httpMetrics, reg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server exited gracefully")
	return nil
}

func setupRouter(cfg *config.Config, images *handler.ImageHandler, httpMetrics *middleware.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger("/health", cfg.Metrics.Path))
	router.Use(corsMiddleware(cfg.CORS))
	router.Use(cacheMiddleware())
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics(httpMetrics))
	}
	router.Use(middleware.RateLimit(cfg.RateLimit))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	router.POST("/extract-images/", images.Upload)
	router.GET("/extract-images/:filename", images.Get)
	router.GET("/debug/images", images.ListStored)

	return router
}

// corsMiddleware allows browser uploads from the configured origins
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 || (len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}
	return cors.New(corsCfg)
}

// cacheMiddleware disables caching by default; handlers serving immutable
// content override it.
func cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Next()
	}
}
