package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	OTLPEndpoint      string
	OTLPProtocol      string
	OtelEnabled       bool
	OtelSamplingRatio float64

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
	DBAutoMigrate     bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ImportRateLimit is the refill rate in requests per second of the
	// import routes per client. Zero disables throttling.
	ImportRateLimit float64
	ImportRateBurst int

	SchedulerEnabled         bool
	SchedulerIntervalSeconds int
	SchedulerJobs            string

	// MetricsPushExporter is prometheus_remote_write or
	// prometheus_pushgateway. Empty disables pushing.
	MetricsPushExporter string
	MetricsPushEndpoint string
	MetricsPushToken    string

	SecretKey     string
	AdminUsername string
	AdminPassword string

	ImportConfigPath string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:                  getenv("APP_SERVICE", "pipelineintel"),
		AppVersion:               getenv("APP_VERSION", "0.1.0"),
		Environment:              getenv("ENVIRONMENT", "development"),
		HTTPAddr:                 getenv("HTTP_ADDR", ":8080"),
		LogLevel:                 strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:                strings.ToLower(getenv("LOG_FORMAT", "json")),
		OTLPEndpoint:             strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
		OTLPProtocol:             strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OtelSamplingRatio:        getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DBType:                   getenv("DATABASE_TYPE", "postgres"),
		DBHost:                   getenv("DATABASE_HOST", "localhost"),
		DBPort:                   getenv("DATABASE_PORT", "5432"),
		DBName:                   getenv("DATABASE_NAME", "pipelineintel"),
		DBUser:                   getenv("DATABASE_USER", "postgres"),
		DBPassword:               getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:                getenv("DATABASE_SSLMODE", "disable"),
		DBPath:                   getenv("DATABASE_PATH", "pipelineintel.db"),
		DBMaxIdleConn:            getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:            getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime:        getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:        getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:            getenvBool("DATABASE_AUTO_MIGRATE", true),
		RedisAddr:                strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:            getenv("REDIS_PASSWORD", ""),
		RedisDB:                  getenvInt("REDIS_DB", 0),
		ImportRateLimit:          getenvFloat("IMPORT_RATE_LIMIT", 0),
		ImportRateBurst:          getenvInt("IMPORT_RATE_BURST", 10),
		SchedulerEnabled:         getenvBool("SCHEDULER_ENABLED", true),
		SchedulerIntervalSeconds: getenvInt("SCHEDULER_INTERVAL_SECONDS", 60),
		SchedulerJobs:            getenv("SCHEDULER_JOBS", ""),
		MetricsPushExporter:      strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", "")),
		MetricsPushEndpoint:      strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
		MetricsPushToken:         getenv("METRICS_PUSH_TOKEN", ""),
		SecretKey:                strings.TrimSpace(getenv("SECRET_KEY", "")),
		AdminUsername:            getenv("ADMIN_USERNAME", "admin"),
		AdminPassword:            getenv("ADMIN_PASSWORD", ""),
		ImportConfigPath:         strings.TrimSpace(getenv("IMPORT_CONFIG_PATH", "")),
	}
	cfg.OtelEnabled = getenvBool("OTEL_ENABLED", cfg.OTLPEndpoint != "")

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
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
