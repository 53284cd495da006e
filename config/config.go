// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/catalogarchive/archiver/catalog"
)

type Config struct {
	// Storage
	DBPath string

	// Concurrency
	MaxConcurrency int
	MaxQueueSize   int

	// Delay policy (spec.md §6)
	RequestDelayMin time.Duration
	RequestDelayMax time.Duration
	PageDelay       time.Duration
	UserSwitch      catalog.UserSwitchConfig

	// Baseline request headers (User-Agent, session cookie)
	Headers map[string]string

	// Legacy bulk-path retry config, core may omit per spec.md §6
	BatchRetryTimes int
	BatchRetryDelay time.Duration

	// HTTP surface
	HTTPAddr string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads environment variables and applies defaults documented in spec.md §6.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DBPath = os.Getenv("DB_PATH")
	if cfg.DBPath == "" {
		cfg.DBPath = "data/catalog.db"
	}

	cfg.MaxConcurrency = envInt("MAX_CONCURRENCY", 4)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxConcurrency*4)

	cfg.RequestDelayMin = envSeconds("REQUEST_DELAY_MIN_SECONDS", 1)
	cfg.RequestDelayMax = envSeconds("REQUEST_DELAY_MAX_SECONDS", 3)
	if cfg.RequestDelayMax < cfg.RequestDelayMin {
		return nil, fmt.Errorf("REQUEST_DELAY_MAX_SECONDS (%s) must be >= REQUEST_DELAY_MIN_SECONDS (%s)", cfg.RequestDelayMax, cfg.RequestDelayMin)
	}
	cfg.PageDelay = envSeconds("PRODUCER_PAGE_DELAY_SECONDS", 5)

	cfg.UserSwitch = catalog.UserSwitchConfig{
		BaseDelay:      envSeconds("USER_SWITCH_BASE_DELAY_SECONDS", 10),
		MaxDelay:       envSeconds("USER_SWITCH_MAX_DELAY_SECONDS", 120),
		FactorPerVideo: envSeconds("USER_SWITCH_FACTOR_PER_VIDEO_SECONDS", 0), // fractional seconds per video; 0 disables the dynamic term
		JitterRatio:    envFloat("USER_SWITCH_JITTER_RATIO", 0.2),
	}

	cfg.Headers = map[string]string{
		"User-Agent": envString("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"),
	}
	if cookie := os.Getenv("SESSION_COOKIE"); cookie != "" {
		cfg.Headers["Cookie"] = cookie
	}

	cfg.BatchRetryTimes = envInt("BATCH_FETCH_RETRY_TIMES", 3)
	cfg.BatchRetryDelay = envSeconds("BATCH_FETCH_RETRY_DELAY_SECONDS", 5)

	cfg.HTTPAddr = envString("HTTP_ADDR", ":8080")

	cfg.LogLevel = envString("LOG_LEVEL", "info")
	cfg.LogFormat = envString("LOG_FORMAT", "text")

	return cfg, nil
}

// Validate checks the fields that must hold for the pipeline to run at all.
func (c *Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("MAX_CONCURRENCY must be positive, got %d", c.MaxConcurrency)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("MAX_QUEUE_SIZE must be positive, got %d", c.MaxQueueSize)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envSeconds(key string, defSeconds float64) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return time.Duration(defSeconds * float64(time.Second))
}
