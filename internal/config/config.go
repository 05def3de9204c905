package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string // LOOM_DATABASE_URL (required)
	HTTPAddr    string // LOOM_HTTP_ADDR (default ":8080")
	NATSURL     string // LOOM_NATS_URL (optional, empty = no events)
	AuthToken   string // LOOM_AUTH_TOKEN (optional, empty = auth disabled)

	// Generation settings
	GenerateTimeout time.Duration // LOOM_GENERATE_TIMEOUT (default 30m)

	// DevProviderModels enables the deterministic dev provider for the
	// listed model ids. LOOM_DEV_PROVIDER_MODELS, comma separated.
	DevProviderModels []string

	// Deliverable export settings
	ExportS3Bucket   string // LOOM_EXPORT_S3_BUCKET (enables S3 export when set)
	ExportS3Endpoint string // LOOM_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string // LOOM_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Prefix   string // LOOM_EXPORT_S3_PREFIX (default "deliverables/")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("LOOM_DATABASE_URL"),
		HTTPAddr:         envOrDefault("LOOM_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("LOOM_NATS_URL"),
		AuthToken:        os.Getenv("LOOM_AUTH_TOKEN"),
		ExportS3Bucket:   os.Getenv("LOOM_EXPORT_S3_BUCKET"),
		ExportS3Endpoint: os.Getenv("LOOM_EXPORT_S3_ENDPOINT"),
		ExportS3Region:   envOrDefault("LOOM_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Prefix:   envOrDefault("LOOM_EXPORT_S3_PREFIX", "deliverables/"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("LOOM_DATABASE_URL is required")
	}

	timeoutStr := envOrDefault("LOOM_GENERATE_TIMEOUT", "30m")
	d, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("LOOM_GENERATE_TIMEOUT: %w", err)
	}
	c.GenerateTimeout = d

	if raw := os.Getenv("LOOM_DEV_PROVIDER_MODELS"); raw != "" {
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				c.DevProviderModels = append(c.DevProviderModels, m)
			}
		}
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
