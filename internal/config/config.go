package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Values come from built-in
// defaults, then an optional YAML file named by CONFIG_FILE, then
// environment variables.
type Config struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ServiceName  string        `yaml:"service_name"`
	RedisAddr    string        `yaml:"redis_addr"`
	PostgresDSN  string        `yaml:"postgres_dsn"`
	// ClickHouseDSN enables the sync audit sink when non-empty.
	ClickHouseDSN string `yaml:"clickhouse_dsn"`

	// Database connection pooling configuration
	DBMaxOpenConns    int           `yaml:"db_max_open_conns"`
	DBMaxIdleConns    int           `yaml:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `yaml:"db_conn_max_lifetime"`
	DBConnMaxIdleTime time.Duration `yaml:"db_conn_max_idle_time"`

	// Ads platform client
	GraphBaseURL     string        `yaml:"graph_base_url"`
	GraphTimeout     time.Duration `yaml:"graph_timeout"`
	GraphMaxRetries  int           `yaml:"graph_max_retries"`
	GraphPageLimit   int           `yaml:"graph_page_limit"`
	ThrottleEnabled  bool          `yaml:"throttle_enabled"`
	ThrottleCapacity int           `yaml:"throttle_capacity"`
	ThrottleRefill   int           `yaml:"throttle_refill"`

	// Sync pipeline
	SyncTimeout         time.Duration `yaml:"sync_timeout"`
	BackfillConcurrency int           `yaml:"backfill_concurrency"`
	UpsertChunkSize     int           `yaml:"upsert_chunk_size"`
	SmartSyncDays       int           `yaml:"smart_sync_days"`
	SmartSyncDelay      time.Duration `yaml:"smart_sync_delay"`
	RateLimitDelay      time.Duration `yaml:"rate_limit_delay"`
	SyncLeads           bool          `yaml:"sync_leads"`
	ReportingTimezone   string        `yaml:"reporting_timezone"`
	LockTTL             time.Duration `yaml:"lock_ttl"`

	// Sync status reconciliation
	StatusGracePeriod time.Duration `yaml:"status_grace_period"`
	StatusStaleAfter  time.Duration `yaml:"status_stale_after"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	AutoSyncInterval  time.Duration `yaml:"auto_sync_interval"`

	// CORSAllowedOrigins lists dashboard origins allowed to call the API.
	// Empty disables CORS handling.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// Tracing configuration
	TracingEnabled    bool    `yaml:"tracing_enabled"`
	TempoEndpoint     string  `yaml:"tempo_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Port:         "8787",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 310 * time.Second, // must outlive SyncTimeout
		ServiceName:  "adsync",
		RedisAddr:    "localhost:6379",
		PostgresDSN:  "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable",

		DBMaxOpenConns:    25,
		DBMaxIdleConns:    5,
		DBConnMaxLifetime: 5 * time.Minute,
		DBConnMaxIdleTime: 1 * time.Minute,

		GraphBaseURL:     "https://graph.facebook.com/v19.0",
		GraphTimeout:     60 * time.Second,
		GraphMaxRetries:  2,
		GraphPageLimit:   500,
		ThrottleEnabled:  true,
		ThrottleCapacity: 20,
		ThrottleRefill:   5,

		SyncTimeout:         300 * time.Second,
		BackfillConcurrency: 5,
		UpsertChunkSize:     20,
		SmartSyncDays:       7,
		SmartSyncDelay:      2 * time.Second,
		RateLimitDelay:      60 * time.Second,
		SyncLeads:           true,
		ReportingTimezone:   "UTC",
		LockTTL:             10 * time.Minute,

		StatusGracePeriod: 30 * time.Second,
		StatusStaleAfter:  10 * time.Minute,
		ReconcileInterval: 15 * time.Second,
		AutoSyncInterval:  time.Hour,

		TempoEndpoint:     "tempo:4317",
		TracingSampleRate: 1.0,
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first when present; variables already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = getenv("PORT", cfg.Port)
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ServiceName = getenv("SERVICE_NAME", cfg.ServiceName)
	cfg.CORSAllowedOrigins = envList("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	cfg.RedisAddr = getenv("REDIS_ADDR", cfg.RedisAddr)
	cfg.PostgresDSN = getenv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", cfg.ClickHouseDSN)

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", cfg.DBMaxOpenConns)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", cfg.DBMaxIdleConns)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", cfg.DBConnMaxLifetime)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", cfg.DBConnMaxIdleTime)

	cfg.GraphBaseURL = strings.TrimRight(getenv("GRAPH_BASE_URL", cfg.GraphBaseURL), "/")
	cfg.GraphTimeout = envDuration("GRAPH_TIMEOUT", cfg.GraphTimeout)
	cfg.GraphMaxRetries = envInt("GRAPH_MAX_RETRIES", cfg.GraphMaxRetries)
	cfg.GraphPageLimit = envInt("GRAPH_PAGE_LIMIT", cfg.GraphPageLimit)
	cfg.ThrottleEnabled = envBool("THROTTLE_ENABLED", cfg.ThrottleEnabled)
	cfg.ThrottleCapacity = envInt("THROTTLE_CAPACITY", cfg.ThrottleCapacity)
	cfg.ThrottleRefill = envInt("THROTTLE_REFILL", cfg.ThrottleRefill)

	cfg.SyncTimeout = envDuration("SYNC_TIMEOUT", cfg.SyncTimeout)
	cfg.BackfillConcurrency = envInt("BACKFILL_CONCURRENCY", cfg.BackfillConcurrency)
	cfg.UpsertChunkSize = envInt("UPSERT_CHUNK_SIZE", cfg.UpsertChunkSize)
	cfg.SmartSyncDays = envInt("SMART_SYNC_DAYS", cfg.SmartSyncDays)
	cfg.SmartSyncDelay = envDuration("SMART_SYNC_DELAY", cfg.SmartSyncDelay)
	cfg.RateLimitDelay = envDuration("RATE_LIMIT_DELAY", cfg.RateLimitDelay)
	cfg.SyncLeads = envBool("SYNC_LEADS", cfg.SyncLeads)
	cfg.ReportingTimezone = getenv("REPORTING_TIMEZONE", cfg.ReportingTimezone)
	cfg.LockTTL = envDuration("LOCK_TTL", cfg.LockTTL)

	cfg.StatusGracePeriod = envDuration("STATUS_GRACE_PERIOD", cfg.StatusGracePeriod)
	cfg.StatusStaleAfter = envDuration("STATUS_STALE_AFTER", cfg.StatusStaleAfter)
	cfg.ReconcileInterval = envDuration("RECONCILE_INTERVAL", cfg.ReconcileInterval)
	cfg.AutoSyncInterval = envDuration("AUTO_SYNC_INTERVAL", cfg.AutoSyncInterval)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", cfg.TracingEnabled)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", cfg.TempoEndpoint)
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", cfg.TracingSampleRate)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.BackfillConcurrency < 1 {
		return fmt.Errorf("backfill concurrency must be positive, got %d", c.BackfillConcurrency)
	}
	if c.UpsertChunkSize < 1 {
		return fmt.Errorf("upsert chunk size must be positive, got %d", c.UpsertChunkSize)
	}
	if c.SmartSyncDays < 1 {
		return fmt.Errorf("smart sync days must be positive, got %d", c.SmartSyncDays)
	}
	if c.SyncTimeout <= 0 {
		return errors.New("sync timeout must be positive")
	}
	if _, err := time.LoadLocation(c.ReportingTimezone); err != nil {
		return fmt.Errorf("reporting timezone %q: %w", c.ReportingTimezone, err)
	}
	return nil
}

// Location returns the reporting time zone. Validate guarantees it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envList splits a comma separated environment variable, dropping empty
// items. When unset, def is returned.
func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
