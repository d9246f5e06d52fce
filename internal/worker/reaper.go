package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/metrics"
)

// Reaper periodically fails RUNNING jobs older than the job timeout.
type Reaper struct {
	expirer  interfaces.JobExpirer
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	logger   logging.Logger
}

func NewReaper(expirer interfaces.JobExpirer, timeout, interval time.Duration, logger logging.Logger) *Reaper {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reaper{
		expirer:  expirer,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(logging.F("component", "reaper")),
	}
}

func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("starting job reaper", logging.F("timeout", r.timeout.String()), logging.F("interval", r.interval.String()))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping job reaper")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil {
				r.logger.Error("reaping jobs", logging.Err(err))
			}
		}
	}
}

// ReapOnce expires jobs that started before now minus the timeout.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	n, err := r.expirer.ExpireRunning(ctx, r.now().Add(-r.timeout))
	if err != nil {
		return n, fmt.Errorf("expiring running jobs: %w", err)
	}
	if n > 0 {
		metrics.ScanJobsExpired(n)
		r.logger.Info("expired stale jobs", logging.F("count", n))
	}
	return n, nil
}
