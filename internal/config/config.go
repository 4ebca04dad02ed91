package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the LabelForge server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	ML        MLConfig
	Jobs      JobsConfig
	Selection SelectionConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// MLConfig selects and configures the model backend that provides the
// embedding, training, and detection capabilities.
type MLConfig struct {
	Backend       string
	BaseURL       string
	Timeout       time.Duration
	EmbeddingDims int
}

// JobsConfig tunes the worker pool and job bodies.
type JobsConfig struct {
	Workers           int
	EmbedBatchSize    int
	AnnotateBatchSize int
	// MinLabeledImages is the training readiness threshold. It is a flat
	// constant and does not scale with the number of classes.
	MinLabeledImages int
}

type SelectionConfig struct {
	DefaultSeed int64
}

var validBackends = map[string]bool{
	"http": true,
	"mock": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LABELFORGE_PORT", 8080),
			Env:  envString("LABELFORGE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		ML: MLConfig{
			Backend:       envString("ML_BACKEND", "http"),
			BaseURL:       os.Getenv("ML_BASE_URL"),
			Timeout:       envDuration("ML_TIMEOUT", 120*time.Second),
			EmbeddingDims: envInt("ML_EMBEDDING_DIMS", 512),
		},
		Jobs: JobsConfig{
			Workers:           envInt("JOB_WORKERS", 2),
			EmbedBatchSize:    envInt("EMBED_BATCH_SIZE", 32),
			AnnotateBatchSize: envInt("ANNOTATE_BATCH_SIZE", 16),
			MinLabeledImages:  envInt("TRAIN_MIN_LABELED_IMAGES", 5),
		},
		Selection: SelectionConfig{
			DefaultSeed: int64(envInt("SELECTION_DEFAULT_SEED", 42)),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validBackends[c.ML.Backend] {
		return fmt.Errorf("ML_BACKEND must be one of http, mock; got %q", c.ML.Backend)
	}
	if c.ML.Backend == "http" {
		if c.ML.BaseURL == "" {
			return fmt.Errorf("ML_BASE_URL is required when ML_BACKEND is http")
		}
		if !strings.HasPrefix(c.ML.BaseURL, "http://") && !strings.HasPrefix(c.ML.BaseURL, "https://") {
			return fmt.Errorf("ML_BASE_URL must start with http:// or https://, got %q", c.ML.BaseURL)
		}
	}
	if c.ML.EmbeddingDims <= 0 {
		return fmt.Errorf("ML_EMBEDDING_DIMS must be positive, got %d", c.ML.EmbeddingDims)
	}

	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("JOB_WORKERS must be positive, got %d", c.Jobs.Workers)
	}
	if c.Jobs.EmbedBatchSize <= 0 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be positive, got %d", c.Jobs.EmbedBatchSize)
	}
	if c.Jobs.AnnotateBatchSize <= 0 {
		return fmt.Errorf("ANNOTATE_BATCH_SIZE must be positive, got %d", c.Jobs.AnnotateBatchSize)
	}
	if c.Jobs.MinLabeledImages < 1 {
		return fmt.Errorf("TRAIN_MIN_LABELED_IMAGES must be at least 1, got %d", c.Jobs.MinLabeledImages)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
