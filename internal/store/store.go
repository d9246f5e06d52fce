// Package store holds opportunity and purchase records behind
// interfaces.OpportunityStore. Three backends are available: an in-process
// map, a SQLite file and PostgreSQL.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/model"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string `yaml:"backend"`      // memory|sqlite|postgres
	SQLitePath  string `yaml:"sqlite_path"`  // used by sqlite
	DatabaseURL string `yaml:"database_url"` // used by postgres
}

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (interfaces.OpportunityStore, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		logger.Info("using in-memory opportunity store")
		return NewMemoryStore(), nil
	case BackendSQLite:
		logger.Info("opening sqlite opportunity store", logging.F("path", cfg.SQLitePath))
		return OpenSQLite(cfg.SQLitePath, logger)
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: postgres backend requires database_url", model.ErrInvalidArgument)
		}
		logger.Info("connecting to postgres opportunity store")
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", model.ErrInvalidArgument, cfg.Backend)
	}
}
