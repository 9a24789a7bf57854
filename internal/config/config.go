// Package config loads service settings from the environment, with .env
// support for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// KNMI Open Data API access.
	APIKey         string
	DatasetName    string
	DatasetVersion string
	RequestTimeout time.Duration

	// Filename convention of the dataset's files.
	FilenamePrefix string
	FilenameExt    string

	// Local storage.
	RawDir    string
	MergedDir string

	// Acquisition limits.
	MaxDownloads int // hard cap on download requests per cycle
	MaxKeys      int // page size for catalog listings

	// Poll loop.
	PollInterval time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional Kafka ingest notifications.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is honored if present.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	requestTimeout, err := parseDuration("REQUEST_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("POLL_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	maxDownloads, err := parseInt("MAX_DOWNLOADS", 100)
	if err != nil {
		return nil, err
	}
	maxKeys, err := parseInt("MAX_KEYS", 1000)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		APIKey:         os.Getenv("KNMI_API_KEY"),
		DatasetName:    envOrDefault("DATASET_NAME", "Actuele10mindataKNMIstations"),
		DatasetVersion: envOrDefault("DATASET_VERSION", "2"),
		RequestTimeout: requestTimeout,

		FilenamePrefix: envOrDefault("FILENAME_PREFIX", "KMDS__OPER_P___10M_OBS_L2_"),
		FilenameExt:    envOrDefault("FILENAME_EXT", ".nc"),

		RawDir:    envOrDefault("RAW_DIR", "assets/downloads"),
		MergedDir: envOrDefault("MERGED_DIR", "assets/merged_data"),

		MaxDownloads: maxDownloads,
		MaxKeys:      maxKeys,
		PollInterval: pollInterval,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers: brokers,
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "ingested-observations"),
		KafkaEnabled: kafkaEnabled,
	}

	if cfg.APIKey == "" {
		return nil, errors.New("KNMI_API_KEY is required")
	}
	if cfg.MaxDownloads <= 0 {
		return nil, errors.New("MAX_DOWNLOADS must be positive")
	}
	if cfg.MaxKeys <= 0 || cfg.MaxKeys > 1000 {
		return nil, errors.New("MAX_KEYS must be between 1 and 1000")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("POLL_INTERVAL must be positive")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
