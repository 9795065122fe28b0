package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration
type Config struct {
	Port          int           // Port to listen on
	Secret        string        // Secret key for JWT & local upload signatures
	Env           string        // Environment (development | production)
	BaseURL       string        // Base URL for the server
	UploadMaxSize int64         // Maximum size for a single uploaded file in bytes
	PresignTTL    time.Duration // Lifetime of issued put/get destinations
	SweepInterval time.Duration // Cleanup sweeper cadence
	Storage       StorageConfig
}

func (c *Config) Log() {
	log.Info().
		Int("port", c.Port).
		Str("env", c.Env).
		Str("base_url", c.BaseURL).
		Int64("upload_max_size", c.UploadMaxSize).
		Dur("presign_ttl", c.PresignTTL).
		Dur("sweep_interval", c.SweepInterval).
		Str("storage_provider", c.Storage.Provider).
		Msg("server configuration")
}

type StorageConfig struct {
	// Provider type ("local" or "minio")
	Provider string `json:"provider"`

	// Local storage config
	LocalPath string `json:"local_path,omitempty"`

	// MinIO / S3-compatible config
	Endpoint  string `json:"endpoint,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	UseSSL    bool   `json:"use_ssl,omitempty"`
}

// NewConfig creates a server configuration from environment variables
func NewConfig() (*Config, error) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil || port <= 0 {
		log.Error().Err(err).Msg("invalid PORT environment variable")
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	secret := os.Getenv("SECRET")
	if secret == "" {
		log.Error().Msg("SECRET environment variable is required")
		return nil, fmt.Errorf("SECRET is required")
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "production"
	}

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", port)
	}

	uploadMaxSizeStr := os.Getenv("UPLOAD_MAX_SIZE")
	if uploadMaxSizeStr == "" {
		uploadMaxSizeStr = "1GB"
	}
	uploadMaxSize, err := parseUploadMaxSize(uploadMaxSizeStr)
	if err != nil {
		log.Error().Err(err).Msg("invalid UPLOAD_MAX_SIZE configuration")
		return nil, err
	}

	presignTTL := 30 * time.Minute
	if s := os.Getenv("PRESIGN_TTL"); s != "" {
		presignTTL, err = time.ParseDuration(s)
		if err != nil || presignTTL <= 0 {
			log.Error().Err(err).Msg("invalid PRESIGN_TTL environment variable")
			return nil, fmt.Errorf("invalid PRESIGN_TTL: %w", err)
		}
	}

	// Development sweeps aggressively so abandoned sessions show up fast;
	// production runs every 10 minutes.
	sweepInterval := 10 * time.Minute
	if env == "development" || env == "dev" || env == "local" {
		sweepInterval = time.Minute
	}
	if s := os.Getenv("SWEEP_INTERVAL"); s != "" {
		sweepInterval, err = time.ParseDuration(s)
		if err != nil || sweepInterval <= 0 {
			log.Error().Err(err).Msg("invalid SWEEP_INTERVAL environment variable")
			return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
		}
	}

	storageProvider := os.Getenv("STORAGE_PROVIDER")
	if storageProvider == "" {
		storageProvider = "local"
	}

	storageConfig := StorageConfig{
		Provider:  storageProvider,
		LocalPath: os.Getenv("STORAGE_DIR"),
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    os.Getenv("MINIO_BUCKET"),
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	}

	if err := validateStorageConfig(storageConfig); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	return &Config{
		Port:          port,
		Secret:        secret,
		Env:           env,
		BaseURL:       baseURL,
		UploadMaxSize: uploadMaxSize,
		PresignTTL:    presignTTL,
		SweepInterval: sweepInterval,
		Storage:       storageConfig,
	}, nil
}

// validateStorageConfig ensures the storage configuration is valid
func validateStorageConfig(cfg StorageConfig) error {
	switch cfg.Provider {
	case "local":
		if cfg.LocalPath == "" {
			return fmt.Errorf("STORAGE_DIR is required for local storage")
		}
	case "minio":
		if cfg.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required for minio storage")
		}
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for minio storage")
		}
		if cfg.Bucket == "" {
			return fmt.Errorf("MINIO_BUCKET is required for minio storage")
		}
	default:
		return fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
	return nil
}

// parseUploadMaxSize parses the UPLOAD_MAX_SIZE environment variable
// Value is expected to be postfixed with "MB" for megabytes or "GB" for gigabytes, e.g. "100MB"
// If no postfix is provided, the value is assumed to be in megabytes
func parseUploadMaxSize(size string) (int64, error) {
	if strings.HasSuffix(size, "GB") {
		value, err := strconv.ParseInt(strings.TrimSuffix(size, "GB"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid UPLOAD_MAX_SIZE: %w", err)
		}
		return value * 1024 * 1024 * 1024, nil
	} else if strings.HasSuffix(size, "MB") {
		value, err := strconv.ParseInt(strings.TrimSuffix(size, "MB"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid UPLOAD_MAX_SIZE: %w", err)
		}
		return value * 1024 * 1024, nil
	} else {
		value, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid UPLOAD_MAX_SIZE: %w", err)
		}
		return value * 1024 * 1024, nil
	}
}
