package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewClassificationConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint  string
	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Webhook  WebhookConfig
	Upstream UpstreamConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Jobs     JobsConfig
	Authz    AuthzConfig

	SyncStaleThreshold time.Duration
	SchedulerInterval  time.Duration
}

type ObservabilityConfig struct {
	LogLevel              string
	LogFormat             string
	LogSamplingInitial    int
	LogSamplingThereafter int
	OtelEnabled           bool
	OtelProtocol          string
	OtelSamplingRatio     float64
}

type WebhookConfig struct {
	Secret    string
	Async     bool
	DedupeTTL time.Duration
}

type UpstreamConfig struct {
	BaseURL     string
	AccessToken string
	PageSize    int
	Timeout     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type JobsConfig struct {
	Workers   int
	QueueSize int
}

type AuthzConfig struct {
	FinanceActors  []string
	ApproverActors []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "commissionhub"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Observability: ObservabilityConfig{
			LogLevel:              strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:             strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			LogSamplingInitial:    getenvInt("LOG_SAMPLING_INITIAL", 100),
			LogSamplingThereafter: getenvInt("LOG_SAMPLING_THEREAFTER", 100),
			OtelEnabled:           getenvBool("OTEL_ENABLED", false),
			OtelProtocol:          otlpProtocol(),
			OtelSamplingRatio:     getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		SyncStaleThreshold: getenvDuration("SYNC_STALE_THRESHOLD", 5*time.Minute),
		SchedulerInterval:  getenvDuration("SCHEDULER_INTERVAL", time.Minute),
		Webhook: WebhookConfig{
			Secret:    strings.TrimSpace(getenv("WEBHOOK_SECRET", "")),
			Async:     getenvBool("WEBHOOK_ASYNC", true),
			DedupeTTL: getenvDuration("WEBHOOK_DEDUPE_TTL", 24*time.Hour),
		},
		Upstream: UpstreamConfig{
			BaseURL:     strings.TrimRight(strings.TrimSpace(getenv("UPSTREAM_BASE_URL", "")), "/"),
			AccessToken: strings.TrimSpace(getenv("UPSTREAM_ACCESS_TOKEN", "")),
			PageSize:    getenvInt("UPSTREAM_PAGE_SIZE", 100),
			Timeout:     getenvDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: parseList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "commission-events"),
		},
		Jobs: JobsConfig{
			Workers:   getenvInt("JOB_WORKERS", 4),
			QueueSize: getenvInt("JOB_QUEUE_SIZE", 256),
		},
		Authz: AuthzConfig{
			FinanceActors:  parseList(getenv("AUTHZ_FINANCE_ACTORS", "")),
			ApproverActors: parseList(getenv("AUTHZ_APPROVER_ACTORS", "")),
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
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

// otlpProtocol prefers the trace-specific exporter protocol when both are set.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return strings.ToLower(strings.TrimSpace(protocol))
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
