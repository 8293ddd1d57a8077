package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/internhub/internhub/pkg/observability"
)

// Deployment environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds all application configuration
type Config struct {
	Env string `yaml:"env"`

	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Analytics     AnalyticsConfig     `yaml:"analytics"`
	Queue         QueueConfig         `yaml:"queue"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RecomputeRateLimit caps recompute requests per client per window.
	// Zero disables throttling.
	RecomputeRateLimit  int           `yaml:"recompute_rate_limit"`
	RecomputeRateWindow time.Duration `yaml:"recompute_rate_window"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL                 string        `yaml:"url"`
	ReplicaURLs         []string      `yaml:"replica_urls"`
	MaxConns            int           `yaml:"max_conns"`
	MinConns            int           `yaml:"min_conns"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxLifetime         time.Duration `yaml:"max_lifetime"`
	MaxIdleTime         time.Duration `yaml:"max_idle_time"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

// RedisConfig holds Redis settings. An empty URL selects the in-process queue.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// AnalyticsConfig holds aggregation and scheduler settings
type AnalyticsConfig struct {
	// IntervalMinutes is the recompute cadence. Zero means the environment default.
	IntervalMinutes   int           `yaml:"interval_minutes"`
	AutoStart         bool          `yaml:"auto_start"`
	BatchSize         int           `yaml:"batch_size"`
	BatchDelay        time.Duration `yaml:"batch_delay"`
	UserTimeout       time.Duration `yaml:"user_timeout"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	BucketConcurrency int           `yaml:"bucket_concurrency"`
	RetentionDays     int           `yaml:"retention_days"`
	CleanupSchedule   string        `yaml:"cleanup_schedule"`
}

// QueueConfig holds recompute queue settings
type QueueConfig struct {
	Name          string        `yaml:"name"`
	Capacity      int           `yaml:"capacity"`
	Workers       int           `yaml:"workers"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level.
func (o ObservabilityConfig) Level() observability.LogLevel {
	return parseLogLevel(o.LogLevel)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env: EnvDevelopment,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,

			RecomputeRateLimit:  30,
			RecomputeRateWindow: time.Minute,
		},
		Database: DatabaseConfig{
			MaxConns:            20,
			MinConns:            2,
			Timeout:             5 * time.Second,
			MaxLifetime:         time.Hour,
			MaxIdleTime:         10 * time.Minute,
			MaintenanceInterval: 30 * time.Second,
		},
		Redis: RedisConfig{
			MaxRetries: 3,
			PoolSize:   10,
		},
		Analytics: AnalyticsConfig{
			AutoStart:         true,
			BatchSize:         10,
			BatchDelay:        100 * time.Millisecond,
			UserTimeout:       30 * time.Second,
			CacheTTL:          30 * time.Second,
			BucketConcurrency: 3,
			CleanupSchedule:   "30 3 * * *",
		},
		Queue: QueueConfig{
			Name:          "internhub:analytics:recompute",
			Capacity:      1000,
			Workers:       4,
			JobTimeout:    30 * time.Second,
			MaxAttempts:   5,
			RetryDelay:    time.Second,
			MaxRetryDelay: 5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "internhub-analytics",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// DefaultIntervalMinutes is the recompute cadence for env when none is configured.
func DefaultIntervalMinutes(env string) int {
	switch env {
	case EnvProduction, EnvStaging:
		return 60
	default:
		return 5
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by INTERNHUB_CONFIG_FILE, then INTERNHUB_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("INTERNHUB_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if cfg.Analytics.IntervalMinutes == 0 {
		cfg.Analytics.IntervalMinutes = DefaultIntervalMinutes(cfg.Env)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from the environment. Unset variables keep the
// current value.
func (c *Config) applyEnv() {
	c.Env = strings.ToLower(getEnv("INTERNHUB_ENV", c.Env))

	s := &c.Server
	s.Host = getEnv("INTERNHUB_HOST", s.Host)
	s.Port = getEnv("INTERNHUB_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("INTERNHUB_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("INTERNHUB_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("INTERNHUB_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("INTERNHUB_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.RecomputeRateLimit = getEnvInt("INTERNHUB_RECOMPUTE_RATE_LIMIT", s.RecomputeRateLimit)
	s.RecomputeRateWindow = getEnvDuration("INTERNHUB_RECOMPUTE_RATE_WINDOW", s.RecomputeRateWindow)

	d := &c.Database
	d.URL = getEnv("INTERNHUB_DATABASE_URL", d.URL)
	if replicas := getEnv("INTERNHUB_DATABASE_REPLICA_URLS", ""); replicas != "" {
		d.ReplicaURLs = splitList(replicas)
	}
	d.MaxConns = getEnvInt("INTERNHUB_DATABASE_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("INTERNHUB_DATABASE_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("INTERNHUB_DATABASE_TIMEOUT", d.Timeout)
	d.MaintenanceInterval = getEnvDuration("INTERNHUB_DATABASE_MAINTENANCE_INTERVAL", d.MaintenanceInterval)

	r := &c.Redis
	r.URL = getEnv("INTERNHUB_REDIS_URL", r.URL)
	r.Password = getEnv("INTERNHUB_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("INTERNHUB_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("INTERNHUB_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("INTERNHUB_REDIS_POOL_SIZE", r.PoolSize)

	a := &c.Analytics
	a.IntervalMinutes = getEnvInt("INTERNHUB_ANALYTICS_INTERVAL_MINUTES", a.IntervalMinutes)
	a.AutoStart = getEnvBool("INTERNHUB_ANALYTICS_AUTO_START", a.AutoStart)
	a.BatchSize = getEnvInt("INTERNHUB_ANALYTICS_BATCH_SIZE", a.BatchSize)
	a.BatchDelay = getEnvDuration("INTERNHUB_ANALYTICS_BATCH_DELAY", a.BatchDelay)
	a.UserTimeout = getEnvDuration("INTERNHUB_ANALYTICS_USER_TIMEOUT", a.UserTimeout)
	a.CacheTTL = getEnvDuration("INTERNHUB_ANALYTICS_CACHE_TTL", a.CacheTTL)
	a.BucketConcurrency = getEnvInt("INTERNHUB_ANALYTICS_BUCKET_CONCURRENCY", a.BucketConcurrency)
	a.RetentionDays = getEnvInt("INTERNHUB_ANALYTICS_RETENTION_DAYS", a.RetentionDays)
	a.CleanupSchedule = getEnv("INTERNHUB_ANALYTICS_CLEANUP_SCHEDULE", a.CleanupSchedule)

	q := &c.Queue
	q.Name = getEnv("INTERNHUB_QUEUE_NAME", q.Name)
	q.Capacity = getEnvInt("INTERNHUB_QUEUE_CAPACITY", q.Capacity)
	q.Workers = getEnvInt("INTERNHUB_QUEUE_WORKERS", q.Workers)
	q.JobTimeout = getEnvDuration("INTERNHUB_QUEUE_JOB_TIMEOUT", q.JobTimeout)
	q.MaxAttempts = getEnvInt("INTERNHUB_QUEUE_MAX_ATTEMPTS", q.MaxAttempts)

	o := &c.Observability
	o.LogLevel = getEnv("INTERNHUB_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("INTERNHUB_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("INTERNHUB_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("INTERNHUB_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("INTERNHUB_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("INTERNHUB_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("INTERNHUB_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("INTERNHUB_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("invalid environment: %s (must be development, staging, production, or test)", c.Env)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.RecomputeRateLimit > 0 && c.Server.RecomputeRateWindow <= 0 {
		return fmt.Errorf("recompute rate window must be positive when a rate limit is set")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max conns must be at least 1")
	}

	a := c.Analytics
	if a.IntervalMinutes < 1 {
		return fmt.Errorf("analytics interval must be at least 1 minute, got %d", a.IntervalMinutes)
	}
	if a.BatchSize < 1 {
		return fmt.Errorf("analytics batch size must be at least 1")
	}
	if a.BatchDelay < 0 {
		return fmt.Errorf("analytics batch delay cannot be negative")
	}
	if a.RetentionDays < 0 {
		return fmt.Errorf("analytics retention days cannot be negative")
	}
	if a.RetentionDays > 0 {
		if _, err := cron.ParseStandard(a.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", a.CleanupSchedule, err)
		}
	}

	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue workers must be at least 1")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue max attempts must be at least 1")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be within [0, 1], got %v", r)
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
