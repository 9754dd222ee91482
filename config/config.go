package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mirror providers
const (
	MirrorNone       = "none"
	MirrorCloudinary = "cloudinary"
	MirrorMinio      = "minio"
	MirrorGCS        = "gcs"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Extract   ExtractConfig   `yaml:"extract"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxUploadMB  int64         `yaml:"max_upload_mb"`
}

// StorageConfig names the two working directories. TempDir holds uploaded
// documents until extraction finishes; OutputDir accumulates extracted images.
type StorageConfig struct {
	TempDir   string `yaml:"temp_dir"`
	OutputDir string `yaml:"output_dir"`
}

type ExtractConfig struct {
	DocumentExt       string `yaml:"document_ext"`
	RelaxedValidation bool   `yaml:"relaxed_validation"`
}

type MirrorConfig struct {
	Provider        string           `yaml:"provider"`
	Timeout         time.Duration    `yaml:"timeout"`
	MaxRetries      int              `yaml:"max_retries"`
	DedupeCacheSize int              `yaml:"dedupe_cache_size"`
	Cloudinary      CloudinaryConfig `yaml:"cloudinary"`
	Minio           MinioConfig      `yaml:"minio"`
	GCS             GCSConfig        `yaml:"gcs"`
}

type CloudinaryConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`

	// CreateBucket makes startup create the bucket when it is missing.
	CreateBucket bool `yaml:"create_bucket"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Extract: ExtractConfig{RelaxedValidation: true},
		Metrics: MetricsConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML configuration file and applies defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{
		Extract: ExtractConfig{RelaxedValidation: true},
		Metrics: MetricsConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 120 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 100
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "temp"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "output_images"
	}
	if c.Extract.DocumentExt == "" {
		c.Extract.DocumentExt = ".pdf"
	}
	c.Extract.DocumentExt = strings.ToLower(c.Extract.DocumentExt)
	if !strings.HasPrefix(c.Extract.DocumentExt, ".") {
		c.Extract.DocumentExt = "." + c.Extract.DocumentExt
	}
	c.Mirror.Provider = strings.ToLower(strings.TrimSpace(c.Mirror.Provider))
	if c.Mirror.Provider == "" {
		c.Mirror.Provider = MirrorCloudinary
	}
	if c.Mirror.Timeout == 0 {
		c.Mirror.Timeout = 30 * time.Second
	}
	if c.Mirror.MaxRetries == 0 {
		c.Mirror.MaxRetries = 2
	}
	if c.Mirror.Minio.Region == "" {
		c.Mirror.Minio.Region = "us-east-1"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 120
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"*"}
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "pdfimages"
	}
}

// ApplyEnv overrides file values with process environment variables.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("CLOUDINARY_CLOUD_NAME", &c.Mirror.Cloudinary.CloudName)
	str("CLOUDINARY_API_KEY", &c.Mirror.Cloudinary.APIKey)
	str("CLOUDINARY_API_SECRET", &c.Mirror.Cloudinary.APISecret)
	str("MINIO_ENDPOINT", &c.Mirror.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Mirror.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Mirror.Minio.SecretKey)
	str("MINIO_BUCKET", &c.Mirror.Minio.Bucket)
	str("GCS_BUCKET", &c.Mirror.GCS.Bucket)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("MIRROR_PROVIDER"); ok && strings.TrimSpace(v) != "" {
		c.Mirror.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("PORT"); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
}

// Validate rejects configurations the service cannot run with. Missing
// mirror credentials are not an error: the mirror is then reported as
// unconfigured and every attempt fails softly.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Mirror.Provider {
	case MirrorNone, MirrorCloudinary, MirrorMinio, MirrorGCS:
	default:
		return fmt.Errorf("unknown mirror provider %q", c.Mirror.Provider)
	}

	tempAbs, err := filepath.Abs(c.Storage.TempDir)
	if err != nil {
		return fmt.Errorf("resolve temp dir: %w", err)
	}
	outAbs, err := filepath.Abs(c.Storage.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	if tempAbs == outAbs {
		return errors.New("temp_dir and output_dir must be different directories")
	}
	return nil
}

// MirrorConfigured reports whether the selected provider has the credentials
// it needs to attempt an upload.
func (c *Config) MirrorConfigured() bool {
	switch c.Mirror.Provider {
	case MirrorCloudinary:
		cl := c.Mirror.Cloudinary
		return cl.CloudName != "" && cl.APIKey != "" && cl.APISecret != ""
	case MirrorMinio:
		m := c.Mirror.Minio
		return m.Endpoint != "" && m.AccessKey != "" && m.SecretKey != "" && m.Bucket != ""
	case MirrorGCS:
		return c.Mirror.GCS.Bucket != ""
	default:
		return false
	}
}

// MaxUploadBytes is the request body limit for document uploads.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}
