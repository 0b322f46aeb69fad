package common

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration, built from the environment.
// The nested-struct-per-concern shape mirrors the donor's TOML Config,
// sourced from os.Getenv instead of a file.
type Config struct {
	Environment string // APP_ENV: "development" | "production"
	AppVersion  string
	RuntimeEnv  string
	SecretKey   string // APP_SECRET_KEY, required

	Server   ServerConfig
	Storage  StorageConfig
	Logging  LoggingConfig
	Workers  WorkersConfig
	Scraper  ScraperConfig
	SSE      SSEConfig
	RateLimiter RateLimiterConfig
}

type ServerConfig struct {
	Port int
	Host string
}

// StorageConfig points at the relational store (C1) and the non-authoritative
// cache (schema/template cache, see internal/cache).
type StorageConfig struct {
	DatabaseURL    string // DATABASE_URL - sqlite file path for modernc.org/sqlite
	CacheDir       string // directory for the badger-backed normalization cache
	ResetOnStartup bool
}

type LoggingConfig struct {
	Level      string
	Output     []string
	TimeFormat string
}

// WorkersConfig governs the job queue/worker pool (C7).
type WorkersConfig struct {
	PollInterval       time.Duration
	CancelPollInterval time.Duration
	StaleSweepInterval time.Duration // cron-driven safety-net sweep, see internal/queue/reaper.go
	StaleThreshold     time.Duration
	EntriesConcurrency int // loaded but not read: process_project_entries uses its own fixed Phase 1 semaphore size
	EntriesBatchSize   int // loaded but not read: process_project_entries uses its own fixed Phase 2 batch size
}

type ScraperConfig struct {
	Timeout    time.Duration
	Cookies    map[string]string
	MaxQPS     float64 // soft outbound politeness guard via golang.org/x/time/rate
}

type SSEConfig struct {
	PingInterval time.Duration
	QueueSize    int
}

type RateLimiterConfig struct {
	DefaultRequestsPerMinute int
}

// NewDefaultConfig returns the baseline configuration before environment
// overrides are applied.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		AppVersion:  "0.1.0",
		RuntimeEnv:  "local",
		Server: ServerConfig{
			Port: 3000,
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			DatabaseURL: "./data/lorecard.db",
			CacheDir:    "./data/cache",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Workers: WorkersConfig{
			PollInterval:       2 * time.Second,
			CancelPollInterval: 5 * time.Second,
			StaleSweepInterval: 5 * time.Minute,
			StaleThreshold:     30 * time.Minute,
			EntriesConcurrency: 10,
			EntriesBatchSize:   10,
		},
		Scraper: ScraperConfig{
			Timeout: 10 * time.Second,
			Cookies: map[string]string{
				"over18": "1",
				"age_verified": "true",
			},
			MaxQPS: 5,
		},
		SSE: SSEConfig{
			PingInterval: 15 * time.Second,
			QueueSize:    32,
		},
		RateLimiter: RateLimiterConfig{
			DefaultRequestsPerMinute: 30,
		},
	}
}

// LoadFromEnv builds a Config from defaults overlaid with environment
// variables. APP_SECRET_KEY is required; everything else has a default.
func LoadFromEnv() (*Config, error) {
	cfg := NewDefaultConfig()

	cfg.Environment = getEnvString("APP_ENV", cfg.Environment)
	cfg.AppVersion = getEnvString("APP_VERSION", cfg.AppVersion)
	cfg.RuntimeEnv = getEnvString("RUNTIME_ENV", cfg.RuntimeEnv)
	cfg.SecretKey = os.Getenv("APP_SECRET_KEY")

	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Storage.DatabaseURL = getEnvString("DATABASE_URL", cfg.Storage.DatabaseURL)
	cfg.Logging.Level = getEnvString("LOG_LEVEL", cfg.Logging.Level)

	cfg.Workers.PollInterval = getEnvDuration("WORKERS_POLL_INTERVAL", cfg.Workers.PollInterval)
	cfg.Workers.EntriesConcurrency = getEnvInt("WORKERS_ENTRIES_CONCURRENCY", cfg.Workers.EntriesConcurrency)

	cfg.Scraper.Timeout = getEnvDuration("SCRAPER_TIMEOUT", cfg.Scraper.Timeout)
	cfg.SSE.PingInterval = getEnvDuration("SSE_PING_INTERVAL", cfg.SSE.PingInterval)

	if cfg.SecretKey == "" {
		return nil, errors.New("APP_SECRET_KEY is required")
	}

	return cfg, nil
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
