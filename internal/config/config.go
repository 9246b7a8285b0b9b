package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Blob      BlobConfig
	Publish   PublishConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Release   ReleaseConfig
	Reconcile ReconcileConfig
	Metrics   MetricsPushConfig
}

type BlobConfig struct {
	RootDir string
	BaseURL string
}

type PublishConfig struct {
	MaxTarballBytes int64
	ReservedNames   []string
}

type RateLimitConfig struct {
	Enabled       bool
	PublishRate   float64
	PublishBurst  int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type WebhookConfig struct {
	Timeout   time.Duration
	Workers   int
	QueueSize int
}

type ReleaseConfig struct {
	WebhookSecret string
	GitHubToken   string
	GitHubBaseURL string
	MappingFile   string
}

type ReconcileConfig struct {
	Enabled  bool
	Grace    time.Duration
	Interval time.Duration
}

type MetricsPushConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "packhub"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:       getenv("DATABASE_TYPE", "postgres"),
		DBHost:       getenv("DATABASE_HOST", "localhost"),
		DBPort:       getenv("DATABASE_PORT", "5432"),
		DBName:       getenv("DATABASE_NAME", "packhub"),
		DBUser:       getenv("DATABASE_USER", "postgres"),
		DBPassword:   getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:    getenv("DATABASE_SSLMODE", "disable"),
		DBPath:       getenv("DATABASE_PATH", "packhub.db"),

		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Blob: BlobConfig{
			RootDir: getenv("BLOB_ROOT_DIR", "./data/blobs"),
			BaseURL: strings.TrimRight(getenv("BLOB_BASE_URL", "/api/packs"), "/"),
		},
		Publish: PublishConfig{
			MaxTarballBytes: getenvInt64("PUBLISH_MAX_TARBALL_BYTES", 10<<20),
			ReservedNames:   getenvList("PUBLISH_RESERVED_NAMES"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", true),
			PublishRate:   getenvFloat("RATE_LIMIT_PUBLISH_RATE", 0.5),
			PublishBurst:  int(getenvInt64("RATE_LIMIT_PUBLISH_BURST", 10)),
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Webhook: WebhookConfig{
			Timeout:   getenvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			Workers:   int(getenvInt64("WEBHOOK_WORKERS", 4)),
			QueueSize: int(getenvInt64("WEBHOOK_QUEUE_SIZE", 256)),
		},
		Release: ReleaseConfig{
			WebhookSecret: strings.TrimSpace(getenv("GITHUB_WEBHOOK_SECRET", "")),
			GitHubToken:   strings.TrimSpace(getenv("GITHUB_TOKEN", "")),
			GitHubBaseURL: strings.TrimSpace(getenv("GITHUB_API_URL", "https://api.github.com")),
			MappingFile:   strings.TrimSpace(getenv("RELEASE_MAPPING_FILE", "")),
		},
		Reconcile: ReconcileConfig{
			Enabled:  getenvBool("RECONCILE_ENABLED", false),
			Grace:    getenvDuration("RECONCILE_GRACE", 24*time.Hour),
			Interval: getenvDuration("RECONCILE_INTERVAL", time.Hour),
		},
		Metrics: MetricsPushConfig{
			Enabled:   getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", 15*time.Minute),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
