// Package config resolves service settings from defaults, an optional YAML
// file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/skinai/internal/decision"
	"github.com/example/skinai/internal/labels"
	"github.com/example/skinai/internal/preprocess"
)

// Model backends.
const (
	BackendONNX = "onnx"
	BackendGRPC = "grpc"
)

// DefaultMaxUploadBytes caps uploaded photos.
const DefaultMaxUploadBytes = 8 << 20

// Config is the full service configuration.
type Config struct {
	Addr            string        `yaml:"addr"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`

	LabelsPath  string `yaml:"labels_path"`
	NormalLabel string `yaml:"normal_label"`

	Model      ModelConfig              `yaml:"model"`
	Thresholds decision.Thresholds      `yaml:"thresholds"`
	Quality    preprocess.QualityPolicy `yaml:"image_quality"`
	Cache      CacheConfig              `yaml:"cache"`
}

// ModelConfig selects and locates the classifier.
type ModelConfig struct {
	Backend           string `yaml:"backend"`
	Path              string `yaml:"path"`
	URL               string `yaml:"url"`
	SharedLibraryPath string `yaml:"onnxruntime_library"`
	InputName         string `yaml:"input_name"`
	OutputName        string `yaml:"output_name"`
	ClassifierAddr    string `yaml:"classifier_addr"`
}

// CacheConfig configures the Redis result cache. An empty address disables it.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:            ":8080",
		LogLevel:        "info",
		ShutdownTimeout: 15 * time.Second,
		MaxUploadBytes:  DefaultMaxUploadBytes,
		NormalLabel:     labels.NormalLabel,
		Model: ModelConfig{
			Backend:    BackendONNX,
			Path:       "models/best_skin_disease_model.onnx",
			InputName:  "input",
			OutputName: "output",
		},
		Thresholds: decision.DefaultThresholds(),
		Quality:    preprocess.DefaultQualityPolicy(),
		Cache:      CacheConfig{TTL: 5 * time.Minute},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LabelsPath = getEnv("LABELS_PATH", c.LabelsPath)
	c.NormalLabel = getEnv("NORMAL_LABEL", c.NormalLabel)
	c.Model.Backend = getEnv("MODEL_BACKEND", c.Model.Backend)
	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Model.URL = getEnv("MODEL_URL", c.Model.URL)
	c.Model.SharedLibraryPath = getEnv("ONNXRUNTIME_SHARED_LIBRARY_PATH", c.Model.SharedLibraryPath)
	c.Model.ClassifierAddr = getEnv("CLASSIFIER_ADDR", c.Model.ClassifierAddr)
	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)

	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	return nil
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	var errs []error
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	q := c.Quality
	if q.MinWidth <= 0 || q.MinHeight <= 0 {
		errs = append(errs, errors.New("image_quality minimum dimensions must be positive"))
	}
	if q.WarnWidth < q.MinWidth || q.WarnHeight < q.MinHeight {
		errs = append(errs, errors.New("image_quality warn dimensions must not be below the minimum"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max_upload_bytes must be positive"))
	}
	switch c.Model.Backend {
	case BackendONNX:
		if c.Model.Path == "" {
			errs = append(errs, errors.New("model.path is required for the onnx backend"))
		}
	case BackendGRPC:
		if c.Model.ClassifierAddr == "" {
			errs = append(errs, errors.New("model.classifier_addr is required for the grpc backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown model backend %q", c.Model.Backend))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
