package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/store"
)

type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	EventBuffer  int           `yaml:"event_buffer"` // per WebSocket subscriber
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
}

type QueueConfig struct {
	Backend       string        `yaml:"backend"` // memory|redis
	MaxPending    int           `yaml:"max_pending"`
	SubmitRetries int           `yaml:"submit_retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	ReapInterval  time.Duration `yaml:"reap_interval"`
	// Retention is how long finished jobs stay readable. 0 keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

type RedisConfig struct {
	URL           string `yaml:"url"`
	Prefix        string `yaml:"prefix"`
	EventsChannel string `yaml:"events_channel"`
}

type ScanConfig struct {
	// Schedule is a cron spec ("@every 10m", "0 */2 * * *"). Empty disables
	// periodic scans.
	Schedule     string   `yaml:"schedule"`
	Categories   []string `yaml:"categories"`
	Marketplaces []string `yaml:"marketplaces"`
}

type FeesConfig struct {
	// DefaultRate is applied to the target price when a worker reports no fee.
	DefaultRate float64 `yaml:"default_rate"`
}

type WorkerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Concurrency  int           `yaml:"concurrency"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the complete runtime configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Log     logging.Config `yaml:"log"`
	Store   store.Config   `yaml:"store"`
	Queue   QueueConfig    `yaml:"queue"`
	Redis   RedisConfig    `yaml:"redis"`
	Scan    ScanConfig     `yaml:"scan"`
	Fees    FeesConfig     `yaml:"fees"`
	Worker  WorkerConfig   `yaml:"worker"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// DefaultCategories and DefaultMarketplaces are what the dashboard offers.
var (
	DefaultCategories = []string{
		"Books", "Electronics", "Video Games", "Musical Instruments", "LEGO",
		"Sporting Goods", "Baby Equipment", "Photography", "Tools", "Trading Cards",
	}
	DefaultMarketplaces = []string{
		"Facebook Marketplace", "Craigslist", "OfferUp", "eBay", "Mercari", "Poshmark", "LetGo",
	}
)

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   ":8000",
			ReadTimeout:  15 * time.Second,
			EventBuffer:  64,
			ShutdownWait: 10 * time.Second,
		},
		Log: logging.Config{Level: "info", Format: "json"},
		Store: store.Config{
			Backend:    store.BackendMemory,
			SQLitePath: "data/flipradar.db",
		},
		Queue: QueueConfig{
			Backend:       "memory",
			MaxPending:    1000,
			SubmitRetries: 3,
			RetryBackoff:  100 * time.Millisecond,
			JobTimeout:    10 * time.Minute,
			ReapInterval:  30 * time.Second,
			Retention:     7 * 24 * time.Hour,
		},
		Redis: RedisConfig{
			Prefix:        "flipradar",
			EventsChannel: "flipradar:events",
		},
		Scan: ScanConfig{
			Schedule:     "@every 10m",
			Categories:   append([]string(nil), DefaultCategories...),
			Marketplaces: append([]string(nil), DefaultMarketplaces...),
		},
		Fees:    FeesConfig{DefaultRate: 0.15},
		Worker:  WorkerConfig{Enabled: true, Concurrency: 2, PollInterval: time.Second},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// LoadConfig reads path on top of DefaultConfig, applies environment
// overrides and validates the result. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides connection settings from the environment. A database
// URL switches the store to postgres and a Redis URL switches the queue to
// redis unless the file already chose a backend explicitly.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("DATABASE_URL")); v != "" {
		c.Store.DatabaseURL = v
		if c.Store.Backend == "" || c.Store.Backend == store.BackendMemory {
			c.Store.Backend = store.BackendPostgres
		}
	}
	if v := strings.TrimSpace(getenv("REDIS_URL")); v != "" {
		c.Redis.URL = v
		if c.Queue.Backend == "" || c.Queue.Backend == "memory" {
			c.Queue.Backend = "redis"
		}
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		c.Server.ListenAddr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := strings.TrimSpace(getenv("LOG_LEVEL")); v != "" {
		c.Log.Level = v
	}
}

// Validate fails fast on settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	switch c.Store.Backend {
	case store.BackendMemory:
	case store.BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for sqlite"))
		}
	case store.BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url (or DATABASE_URL) is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of memory|sqlite|postgres", c.Store.Backend))
	}
	switch c.Queue.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url (or REDIS_URL) is required for the redis queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("queue.backend %q is not one of memory|redis", c.Queue.Backend))
	}
	if c.Queue.MaxPending < 0 {
		errs = append(errs, errors.New("queue.max_pending must not be negative"))
	}
	if c.Queue.SubmitRetries < 1 {
		errs = append(errs, errors.New("queue.submit_retries must be at least 1"))
	}
	if c.Queue.JobTimeout <= 0 {
		errs = append(errs, errors.New("queue.job_timeout must be positive"))
	}
	if c.Queue.ReapInterval <= 0 {
		errs = append(errs, errors.New("queue.reap_interval must be positive"))
	}
	if c.Queue.Retention < 0 {
		errs = append(errs, errors.New("queue.retention must not be negative"))
	}
	if c.Fees.DefaultRate < 0 || c.Fees.DefaultRate >= 1 {
		errs = append(errs, errors.New("fees.default_rate must be within [0,1)"))
	}
	if c.Worker.Enabled {
		if c.Worker.Concurrency < 1 {
			errs = append(errs, errors.New("worker.concurrency must be at least 1"))
		}
		if c.Worker.PollInterval <= 0 {
			errs = append(errs, errors.New("worker.poll_interval must be positive"))
		}
	}
	if len(c.Scan.Categories) == 0 {
		errs = append(errs, errors.New("scan.categories must not be empty"))
	}
	return errors.Join(errs...)
}

// ValidateStandaloneWorker checks that a worker running in its own process
// shares its queue and store with the API processes. A memory backend would
// keep the worker's jobs or opportunities invisible to them.
func (c *Config) ValidateStandaloneWorker() error {
	var errs []error
	if c.Queue.Backend != "redis" {
		errs = append(errs, errors.New("a standalone worker needs queue.backend redis (set REDIS_URL)"))
	}
	if c.Store.Backend == store.BackendMemory {
		errs = append(errs, errors.New("a standalone worker needs a shared store, not memory (set DATABASE_URL or store.backend sqlite)"))
	}
	return errors.Join(errs...)
}
