// Package config loads the service configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/documentquery/internal/gcp"
)

// Config holds every setting used by the functions and the standalone server.
type Config struct {
	Env      string
	LogLevel string

	ProjectID      string
	VertexAIRegion string
	VertexAIModel  string

	CollectionName   string
	RawContentBucket string
	UploadBucket     string

	MaxFileSize     int64
	AllowedFileType string

	ExtractionTimeout time.Duration
	SearchTimeout     time.Duration
	SearchConcurrency int

	HTTPAddr    string
	OwnerHeader string
}

// Load reads the configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Env:      gcp.GetEnv("ENV", "production"),
		LogLevel: gcp.GetEnv("LOG_LEVEL", "info"),

		ProjectID:      gcp.GetEnv("PROJECT_ID", ""),
		VertexAIRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		VertexAIModel:  gcp.GetEnv("VERTEX_AI_MODEL", "gemini-1.5-pro"),

		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		RawContentBucket: gcp.GetEnv("RAW_CONTENT_BUCKET", ""),
		UploadBucket:     gcp.GetEnv("UPLOAD_BUCKET", ""),

		MaxFileSize:     getEnvAsInt64("MAX_FILE_SIZE", 5*1024*1024),
		AllowedFileType: gcp.GetEnv("ALLOWED_FILE_TYPE", "application/pdf"),

		ExtractionTimeout: getEnvAsDuration("EXTRACTION_TIMEOUT", 0),
		SearchTimeout:     getEnvAsDuration("SEARCH_TIMEOUT", 30*time.Second),
		SearchConcurrency: getEnvAsInt("SEARCH_CONCURRENCY", 4),

		HTTPAddr:    gcp.GetEnv("HTTP_ADDR", ":8080"),
		OwnerHeader: gcp.GetEnv("OWNER_HEADER", "X-Owner-Id"),
	}
}

// Validate checks the values that have no usable default.
func (c *Config) Validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}
	if c.AllowedFileType == "" {
		return fmt.Errorf("ALLOWED_FILE_TYPE must be set")
	}
	if c.SearchConcurrency <= 0 {
		return fmt.Errorf("SEARCH_CONCURRENCY must be positive, got %d", c.SearchConcurrency)
	}
	if c.ExtractionTimeout < 0 {
		return fmt.Errorf("EXTRACTION_TIMEOUT must not be negative")
	}
	if c.SearchTimeout < 0 {
		return fmt.Errorf("SEARCH_TIMEOUT must not be negative")
	}
	if c.OwnerHeader == "" {
		return fmt.Errorf("OWNER_HEADER must be set")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RequireCloud checks the settings needed to reach Firestore and Cloud Storage.
func (c *Config) RequireCloud() error {
	if c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if c.RawContentBucket == "" {
		return fmt.Errorf("RAW_CONTENT_BUCKET environment variable must be set")
	}
	return nil
}

// IsDevelopment reports whether error responses may carry diagnostics.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// ParseLevel maps LOG_LEVEL values onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// SetupLogging installs a JSON slog handler on stdout as the default logger.
func SetupLogging(levelName string) *slog.Logger {
	level, err := ParseLevel(levelName)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
