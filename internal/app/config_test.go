package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/flipradar/internal/store"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Queue.JobTimeout != 10*time.Minute {
		t.Errorf("expected 10m job timeout, got %v", cfg.Queue.JobTimeout)
	}
	if cfg.Fees.DefaultRate != 0.15 {
		t.Errorf("expected 0.15 fee rate, got %v", cfg.Fees.DefaultRate)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  listen_addr: ":9000"
store:
  backend: sqlite
  sqlite_path: /tmp/x.db
queue:
  job_timeout: 2m
scan:
  schedule: "@every 1h"
  categories: [Books, LEGO]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" || cfg.Store.Backend != "sqlite" {
		t.Errorf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Queue.JobTimeout != 2*time.Minute {
		t.Errorf("expected 2m, got %v", cfg.Queue.JobTimeout)
	}
	if cfg.Queue.ReapInterval != 30*time.Second {
		t.Errorf("expected default reap interval to survive, got %v", cfg.Queue.ReapInterval)
	}
	if cfg.Queue.Retention != 7*24*time.Hour {
		t.Errorf("expected default retention to survive, got %v", cfg.Queue.Retention)
	}
	if len(cfg.Scan.Categories) != 2 {
		t.Errorf("expected 2 categories, got %v", cfg.Scan.Categories)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"DATABASE_URL": "postgres://u:p@localhost/db",
		"REDIS_URL":    "redis://localhost:6379/0",
		"PORT":         "8080",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Store.Backend != "postgres" || cfg.Store.DatabaseURL != env["DATABASE_URL"] {
		t.Errorf("expected postgres store from DATABASE_URL, got %+v", cfg.Store)
	}
	if cfg.Queue.Backend != "redis" || cfg.Redis.URL != env["REDIS_URL"] {
		t.Errorf("expected redis queue from REDIS_URL, got %+v / %+v", cfg.Queue, cfg.Redis)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Server.ListenAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected env-derived config to validate: %v", err)
	}

	sqlite := DefaultConfig()
	sqlite.Store.Backend = "sqlite"
	sqlite.ApplyEnv(func(k string) string { return env[k] })
	if sqlite.Store.Backend != "sqlite" {
		t.Errorf("explicit sqlite backend must not be overridden, got %q", sqlite.Store.Backend)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Store.Backend = "postgres"
	cfg.Queue.Backend = "kafka"
	cfg.Queue.SubmitRetries = 0
	cfg.Queue.Retention = -time.Hour
	cfg.Fees.DefaultRate = 1.5
	cfg.Scan.Categories = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"database_url", "queue.backend", "submit_retries", "queue.retention", "default_rate", "categories"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q: %v", want, err)
		}
	}
}

func TestConfig_ValidateStandaloneWorker(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	err := cfg.ValidateStandaloneWorker()
	if err == nil {
		t.Fatal("expected default in-memory config to be rejected for a standalone worker")
	}
	for _, want := range []string{"queue.backend redis", "shared store"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got %v", want, err)
		}
	}

	cfg.Queue.Backend = "redis"
	if err := cfg.ValidateStandaloneWorker(); err == nil || !strings.Contains(err.Error(), "shared store") {
		t.Errorf("expected memory store to be rejected, got %v", err)
	}

	cfg.Store.Backend = store.BackendPostgres
	if err := cfg.ValidateStandaloneWorker(); err != nil {
		t.Errorf("expected redis + postgres to be accepted, got %v", err)
	}
}
