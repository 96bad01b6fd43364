// Package config loads the service configuration from environment variables
// and validates it before anything is wired
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"poster-pipeline/internal/workers"
)

// Artifact backends
const (
	BackendFilesystem = "filesystem"
	BackendMinIO      = "minio"
)

// DefaultMaxPixels admits a 6000x6000 poster, far above any print scan
// while keeping one decoded buffer under 150MB
const DefaultMaxPixels = 36_000_000

// Config represents the application configuration
type Config struct {
	Environment string
	Port        string
	Host        string
	DatabaseURL string
	Artifacts   ArtifactConfig
	Storage     StorageConfig
	Pipeline    PipelineConfig
	Presenter   PresenterConfig
	Cache       CacheConfig
	Logging     *LoggingConfig
	Server      *ServerConfig
}

// ArtifactConfig selects where derivative files are written
type ArtifactConfig struct {
	Backend string
	// CacheFolder is the root of the filesystem backend
	CacheFolder string
}

// StorageConfig holds object storage configuration for the minio backend
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
	MaxUploadSize   int64
}

// PipelineConfig tunes the derivative pipeline
type PipelineConfig struct {
	Workers          int
	ThumbnailQuality float32
	PresenterQuality float32
	// MaxPixels bounds width*height of a decoded upload
	MaxPixels int
}

// PresenterConfig points at optional presenter assets. Empty paths select
// the built-in template and Go Bold.
type PresenterConfig struct {
	TemplatePath  string
	TitleFontPath string
	TextFontPath  string
}

// CacheConfig holds Redis configuration for the record cache and key locks
type CacheConfig struct {
	Enabled         bool
	Address         string
	Password        string
	Database        int
	DefaultTTL      time.Duration
	LockTTL         time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// UploadRateLimit caps poster uploads per client IP and minute, 0 disables it
	UploadRateLimit int
}

// Load creates a new configuration from environment variables with validation
func Load() (*Config, error) {
	useSSL, _ := strconv.ParseBool(getEnv("STORAGE_USE_SSL", "false"))
	maxUploadSize := parseSize(getEnv("MAX_UPLOAD_SIZE", "10MB"))

	readTimeout, _ := time.ParseDuration(getEnv("READ_TIMEOUT", "10s"))
	writeTimeout, _ := time.ParseDuration(getEnv("WRITE_TIMEOUT", "30s"))
	idleTimeout, _ := time.ParseDuration(getEnv("SERVER_TIMEOUT", "60s"))

	cacheEnabled, _ := strconv.ParseBool(getEnv("CACHE_ENABLED", "false"))
	cacheTTL, _ := time.ParseDuration(getEnv("CACHE_TTL", "1h"))
	lockTTL, _ := time.ParseDuration(getEnv("LOCK_TTL", "2m"))

	config := &Config{
		Environment: getEnv("GO_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		Host:        getEnv("HOST", "localhost"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Artifacts: ArtifactConfig{
			Backend:     strings.ToLower(getEnv("ARTIFACT_BACKEND", BackendFilesystem)),
			CacheFolder: getEnv("CACHE_FOLDER", "./cache"),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			BucketName:      getEnv("STORAGE_BUCKET", "posters"),
			UseSSL:          useSSL,
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
			MaxUploadSize:   maxUploadSize,
		},
		Pipeline: PipelineConfig{
			Workers:          getEnvInt("POSTER_WORKERS", workers.ForCPU(0)),
			ThumbnailQuality: getEnvFloat("THUMBNAIL_QUALITY", 85),
			PresenterQuality: getEnvFloat("PRESENTER_QUALITY", 85),
			MaxPixels:        getEnvInt("PIPELINE_MAX_PIXELS", DefaultMaxPixels),
		},
		Presenter: PresenterConfig{
			TemplatePath:  getEnv("PRESENTER_TEMPLATE", ""),
			TitleFontPath: getEnv("PRESENTER_TITLE_FONT", ""),
			TextFontPath:  getEnv("PRESENTER_TEXT_FONT", ""),
		},
		Cache: CacheConfig{
			Enabled:         cacheEnabled,
			Address:         getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			Database:        getEnvInt("REDIS_DB", 0),
			DefaultTTL:      cacheTTL,
			LockTTL:         lockTTL,
			MaxRetries:      3,
			MinRetryBackoff: 8 * time.Millisecond,
			MaxRetryBackoff: 512 * time.Millisecond,
			DialTimeout:     5 * time.Second,
			ReadTimeout:     3 * time.Second,
			WriteTimeout:    3 * time.Second,
			PoolSize:        10,
			MinIdleConns:    2,
			PoolTimeout:     4 * time.Second,
		},
		Logging: &LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Server: &ServerConfig{
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,

			UploadRateLimit: getEnvInt("UPLOAD_RATE_LIMIT", 60),
		},
	}

	// Validate configuration before returning
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt keeps the raw value on parse failure as -1 so Validate reports it
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return -1
	}
	return n
}

func getEnvFloat(key string, defaultValue float32) float32 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil {
		return -1
	}
	return float32(f)
}

// parseSize parses size strings like "10MB", "512KB" into bytes
func parseSize(sizeStr string) int64 {
	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))

	if strings.HasSuffix(sizeStr, "MB") {
		numStr := strings.TrimSuffix(sizeStr, "MB")
		if num, err := strconv.ParseInt(numStr, 10, 64); err == nil {
			return num * 1024 * 1024
		}
	}

	if strings.HasSuffix(sizeStr, "KB") {
		numStr := strings.TrimSuffix(sizeStr, "KB")
		if num, err := strconv.ParseInt(numStr, 10, 64); err == nil {
			return num * 1024
		}
	}

	// Default to 10MB if parsing fails
	return 10 * 1024 * 1024
}

// MustLoad loads configuration and panics on error
func MustLoad() *Config {
	config, err := Load()
	if err != nil {
		panic(err)
	}
	return config
}
