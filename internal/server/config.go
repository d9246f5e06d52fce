package server

import (
	"time"

	"github.com/raysh454/flipradar/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr  string
	ReadTimeout time.Duration

	// Metrics mounts the Prometheus handler on /metrics.
	Metrics bool

	Logger logging.Logger
}
