package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom log forwarding configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// CacheConfig selects and configures the artifact store backend.
type CacheConfig struct {
	Backend    string // "fs" or "s3"
	Dir        string
	S3Bucket   string
	S3Prefix   string
	Passphrase string
}

// ExtractorConfig points at the structure extraction service.
type ExtractorConfig struct {
	Endpoint    string
	Timeout     time.Duration
	EnableOCR   bool
	LayoutModel string
	MaxInflight int
	BaseBackoff time.Duration
}

// PipelineConfig holds pipeline behavior settings.
type PipelineConfig struct {
	CorrectionScript string
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL string
	Stream   string
	Group    string
}

// WorkerConfig defines worker pool behavior and limits.
type WorkerConfig struct {
	Concurrency int
	JobTimeout  time.Duration
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port      string
	UploadDir string
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Cache     CacheConfig
	Extractor ExtractorConfig
	Pipeline  PipelineConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Server    ServerConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/docsmith.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_docsmith",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Cache = CacheConfig{
		Backend:    getEnv("CACHE_BACKEND", "fs"),
		Dir:        getEnv("CACHE_DIR", "cache"),
		S3Bucket:   getEnv("CACHE_S3_BUCKET", ""),
		S3Prefix:   getEnv("CACHE_S3_PREFIX", "docsmith"),
		Passphrase: getEnv("CACHE_PASSPHRASE", ""),
	}

	cfg.Extractor = ExtractorConfig{
		Endpoint:    getEnv("EXTRACTOR_ENDPOINT", "http://localhost:9010/extract"),
		Timeout:     parseDuration(getEnv("EXTRACTOR_TIMEOUT", "5m"), 5*time.Minute),
		EnableOCR:   parseBool(getEnv("EXTRACTOR_ENABLE_OCR", "false")),
		LayoutModel: getEnv("EXTRACTOR_LAYOUT_MODEL", "heron"),
		MaxInflight: parseInt(getEnv("EXTRACTOR_MAX_INFLIGHT", "4"), 4),
		BaseBackoff: parseDuration(getEnv("EXTRACTOR_BASE_BACKOFF", "30s"), 30*time.Second),
	}

	cfg.Pipeline = PipelineConfig{
		CorrectionScript: getEnv("CORRECTION_SCRIPT", ""),
	}

	cfg.Queue = QueueConfig{
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:   getEnv("QUEUE_STREAM", "jobs:documents"),
		Group:    getEnv("QUEUE_GROUP", "workers:pipeline"),
	}

	cfg.Worker = WorkerConfig{
		Concurrency: parseInt(getEnv("WORKER_CONCURRENCY", "4"), 4),
		JobTimeout:  parseDuration(getEnv("JOB_TIMEOUT", "10m"), 10*time.Minute),
	}

	cfg.Server = ServerConfig{
		Port:      getEnv("PORT", "8080"),
		UploadDir: getEnv("UPLOAD_DIR", "uploads"),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
