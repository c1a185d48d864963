package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
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

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// CompletionConfig configures the YandexGPT completion client.
type CompletionConfig struct {
	BaseURL         string
	APIKey          string
	ModelURI        string
	RequestTimeout  time.Duration
	ResourceTimeout time.Duration
	MaxInflight     int

	// Circuit breaker around the endpoint.
	BreakerThreshold  int
	BreakerBackoff    time.Duration
	BreakerMaxBackoff time.Duration
}

// ContextConfig bounds the text sent with each request.
type ContextConfig struct {
	MaxChars int
}

// CacheConfig controls the Redis page text cache.
type CacheConfig struct {
	Enabled  bool
	RedisURL string
	TTL      time.Duration
}

// ImportConfig controls where referenced PDFs are copied and fetched from.
type ImportConfig struct {
	Dir          string
	HTTPTimeout  time.Duration
	S3Bucket     string
	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string

	// AllowLocal lets the HTTP service import server-local paths.
	AllowLocal   bool
	AllowedHosts []string
	MaxBytes     int64
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging    LoggingConfig
	Axiom      AxiomConfig
	Completion CompletionConfig
	Context    ContextConfig
	Cache      CacheConfig
	Import     ImportConfig
	Server     ServerConfig
}

// Load reads an optional .env file and then the environment. Variables that
// are already set win over the file.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfchat.log"),
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
		Dataset:       baseDataset + "_pdfchat",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Completion = CompletionConfig{
		BaseURL:         getEnv("COMPLETION_BASE_URL", "https://llm.api.cloud.yandex.net"),
		APIKey:          getEnv("YANDEX_API_KEY", ""),
		ModelURI:        getEnv("YANDEX_MODEL_URI", ""),
		RequestTimeout:  parseDuration(getEnv("COMPLETION_REQUEST_TIMEOUT", "30s"), 30*time.Second),
		ResourceTimeout: parseDuration(getEnv("COMPLETION_RESOURCE_TIMEOUT", "60s"), 60*time.Second),
		MaxInflight:     parseInt(getEnv("COMPLETION_MAX_INFLIGHT", "8"), 8),

		BreakerThreshold:  parseInt(getEnv("COMPLETION_BREAKER_THRESHOLD", "3"), 3),
		BreakerBackoff:    parseDuration(getEnv("COMPLETION_BREAKER_BACKOFF", "5s"), 5*time.Second),
		BreakerMaxBackoff: parseDuration(getEnv("COMPLETION_BREAKER_MAX_BACKOFF", "1m"), time.Minute),
	}
	if cfg.Completion.ResourceTimeout < cfg.Completion.RequestTimeout {
		cfg.Completion.ResourceTimeout = cfg.Completion.RequestTimeout
	}

	cfg.Context = ContextConfig{
		MaxChars: parseInt(getEnv("CONTEXT_MAX_CHARS", "100000"), 100000),
	}
	if cfg.Context.MaxChars <= 0 {
		cfg.Context.MaxChars = 100000
	}

	cfg.Cache = CacheConfig{
		Enabled:  parseBool(getEnv("TEXT_CACHE_ENABLED", "false")),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		TTL:      parseDuration(getEnv("TEXT_CACHE_TTL", "24h"), 24*time.Hour),
	}

	cfg.Import = ImportConfig{
		Dir:          getEnv("IMPORT_DIR", defaultImportDir()),
		HTTPTimeout:  parseDuration(getEnv("IMPORT_HTTP_TIMEOUT", "60s"), 60*time.Second),
		S3Bucket:     getEnv("AWS_S3_BUCKET", ""),
		AWSRegion:    getEnv("AWS_REGION", ""),
		AWSAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AllowLocal:   parseBool(getEnv("IMPORT_ALLOW_LOCAL", "false")),
		AllowedHosts: parseList(getEnv("IMPORT_ALLOWED_HOSTS", "")),
		MaxBytes:     int64(parseInt(getEnv("IMPORT_MAX_BYTES", "104857600"), 100<<20)),
	}
	if cfg.Import.MaxBytes <= 0 {
		cfg.Import.MaxBytes = 100 << 20
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		AllowedOrigins:  parseList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
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

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}

// defaultImportDir is ImportedPDFs under the user's documents folder, or under
// the working directory when there is no home.
func defaultImportDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, "Documents", "ImportedPDFs")
	}
	return "ImportedPDFs"
}
