package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_PATH", "")
	t.Setenv("MAX_CONCURRENCY", "")
	t.Setenv("MAX_QUEUE_SIZE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DBPath != "data/catalog.db" {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
	if cfg.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", cfg.MaxConcurrency)
	}
	if cfg.MaxQueueSize != cfg.MaxConcurrency*4 {
		t.Errorf("MaxQueueSize = %d, want %d", cfg.MaxQueueSize, cfg.MaxConcurrency*4)
	}
	if cfg.RequestDelayMin != time.Second || cfg.RequestDelayMax != 3*time.Second {
		t.Errorf("unexpected default request delay range: [%v, %v]", cfg.RequestDelayMin, cfg.RequestDelayMax)
	}
	if cfg.UserSwitch.BaseDelay != 10*time.Second {
		t.Errorf("UserSwitch.BaseDelay = %v, want 10s", cfg.UserSwitch.BaseDelay)
	}
	if cfg.Headers["User-Agent"] == "" {
		t.Error("expected a default User-Agent header")
	}
	if _, ok := cfg.Headers["Cookie"]; ok {
		t.Error("expected no Cookie header by default")
	}
}

func TestLoadRejectsInvertedDelayRange(t *testing.T) {
	t.Setenv("REQUEST_DELAY_MIN_SECONDS", "10")
	t.Setenv("REQUEST_DELAY_MAX_SECONDS", "1")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for REQUEST_DELAY_MAX_SECONDS < REQUEST_DELAY_MIN_SECONDS")
	}
}

func TestLoadAppliesSessionCookie(t *testing.T) {
	t.Setenv("SESSION_COOKIE", "SESSDATA=abc123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Headers["Cookie"] != "SESSDATA=abc123" {
		t.Errorf("Cookie header = %q, want SESSDATA=abc123", cfg.Headers["Cookie"])
	}
}

func TestValidateRejectsNonPositiveConcurrency(t *testing.T) {
	cfg := &Config{DBPath: "x.db", MaxConcurrency: 0, MaxQueueSize: 4}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero MaxConcurrency")
	}
}

func TestValidateRejectsEmptyDBPath(t *testing.T) {
	cfg := &Config{DBPath: "", MaxConcurrency: 1, MaxQueueSize: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty DBPath")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}
