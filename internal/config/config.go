package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

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
	MigrateOnStart    bool

	Redis      RedisConfig
	Allocation AllocationConfig
	Scheduler  SchedulerConfig
	Geocoder   GeocoderConfig
	Import     ImportConfig
	Push       PushConfig

	Observability ObservabilityConfig

	TaxonomyFile string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// AllocationConfig pins the aggregate sources the allocation engine reads.
type AllocationConfig struct {
	DetailedSource    string  `mapstructure:"detailed_source"`
	DetailedPollutant string  `mapstructure:"detailed_pollutant"`
	CoarseSource      string  `mapstructure:"coarse_source"`
	CoarsePollutant   string  `mapstructure:"coarse_pollutant"`
	CoarseScale       float64 `mapstructure:"coarse_scale"`
	SplitPolicy       string  `mapstructure:"split_policy"`
	MaxParallelYears  int     `mapstructure:"max_parallel_years"`
	LockTTLSeconds    int     `mapstructure:"lock_ttl_seconds"`
}

type SchedulerConfig struct {
	Enabled         bool
	IntervalSeconds int
	YearsBack       int
	RebuildBatch    int
}

type GeocoderConfig struct {
	Endpoint       string
	APIKey         string
	RequestsPerSec float64
	Burst          int
	CacheTTLMin    int
}

type ImportConfig struct {
	UploadRate  float64
	UploadBurst int
}

// PushConfig points the scheduler at a metrics sink. An empty exporter
// disables pushing.
type PushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
}

// ObservabilityConfig controls logging, OTLP export and the GORM slow query
// threshold. Tracing and metrics stay off until a collector endpoint is
// set, except in production where a configured endpoint turns them on.
type ObservabilityConfig struct {
	LogLevel        string  `mapstructure:"log_level"`
	LogFormat       string  `mapstructure:"log_format"`
	TracingEnabled  bool    `mapstructure:"tracing_enabled"`
	MetricsEnabled  bool    `mapstructure:"metrics_enabled"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPProtocol    string  `mapstructure:"otlp_protocol"`
	SamplingRatio   float64 `mapstructure:"sampling_ratio"`
	SlowQueryMillis int     `mapstructure:"slow_query_millis"`
}

const (
	SplitPolicyEven = "even"
	SplitPolicyFull = "full"
)

// Load loads configuration from environment variables and .env file. When
// VERDANT_CONFIG names a file, its allocation section overrides the
// environment.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "verdant"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "verdant"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "verdant.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		MigrateOnStart:    getenvBool("MIGRATE_ON_START", true),
		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Allocation: AllocationConfig{
			DetailedSource:    getenv("ALLOCATION_DETAILED_SOURCE", "gir4"),
			DetailedPollutant: getenv("ALLOCATION_DETAILED_POLLUTANT", "CO2"),
			CoarseSource:      getenv("ALLOCATION_COARSE_SOURCE", "gir1"),
			CoarsePollutant:   getenv("ALLOCATION_COARSE_POLLUTANT", "CO2eq"),
			CoarseScale:       getenvFloat("ALLOCATION_COARSE_SCALE", 1000),
			SplitPolicy:       normalizeSplitPolicy(getenv("ALLOCATION_SPLIT_POLICY", SplitPolicyEven)),
			MaxParallelYears:  getenvInt("ALLOCATION_MAX_PARALLEL_YEARS", 4),
			LockTTLSeconds:    getenvInt("ALLOCATION_LOCK_TTL_SECONDS", 900),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getenvBool("SCHEDULER_ENABLED", true),
			IntervalSeconds: getenvInt("SCHEDULER_INTERVAL_SECONDS", 3600),
			YearsBack:       getenvInt("SCHEDULER_ALLOCATION_YEARS", 3),
			RebuildBatch:    getenvInt("SCHEDULER_REBUILD_BATCH", 100),
		},
		Geocoder: GeocoderConfig{
			Endpoint:       strings.TrimSpace(getenv("GEOCODER_ENDPOINT", "")),
			APIKey:         strings.TrimSpace(getenv("GEOCODER_API_KEY", "")),
			RequestsPerSec: getenvFloat("GEOCODER_RPS", 5),
			Burst:          getenvInt("GEOCODER_BURST", 1),
			CacheTTLMin:    getenvInt("GEOCODER_CACHE_TTL_MINUTES", 60),
		},
		Import: ImportConfig{
			UploadRate:  getenvFloat("IMPORT_UPLOAD_RATE", 0.2),
			UploadBurst: getenvInt("IMPORT_UPLOAD_BURST", 3),
		},
		Push: PushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_TOKEN", "")),
		},
		TaxonomyFile: strings.TrimSpace(getenv("TAXONOMY_FILE", "")),
	}
	cfg.Observability = loadObservability(cfg.Environment)

	if path := strings.TrimSpace(os.Getenv("VERDANT_CONFIG")); path != "" {
		// an unreadable file leaves the environment values in place
		_ = overlayFile(&cfg, path)
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func loadObservability(env string) ObservabilityConfig {
	endpoint := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "")))
	exportByDefault := endpoint != "" && strings.EqualFold(strings.TrimSpace(env), "production")

	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	return ObservabilityConfig{
		LogLevel:        strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:       strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		TracingEnabled:  getenvBool("OTEL_TRACING_ENABLED", getenvBool("OTEL_ENABLED", exportByDefault)),
		MetricsEnabled:  getenvBool("OTEL_METRICS_ENABLED", getenvBool("OTEL_ENABLED", exportByDefault)),
		OTLPEndpoint:    endpoint,
		OTLPProtocol:    strings.ToLower(strings.TrimSpace(protocol)),
		SamplingRatio:   getenvFloat("OTEL_SAMPLING_RATIO", 1.0),
		SlowQueryMillis: getenvInt("DB_SLOW_QUERY_MS", 500),
	}
}

func normalizeSplitPolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case SplitPolicyFull:
		return SplitPolicyFull
	default:
		return SplitPolicyEven
	}
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
