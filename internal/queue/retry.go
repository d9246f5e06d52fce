package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/model"
)

// Retrying retries Submit on model.ErrUpstreamUnavailable with doubling
// backoff. Status and Recent go straight to the wrapped queue; reads are
// never retried.
type Retrying struct {
	interfaces.ScanQueue

	attempts int
	backoff  time.Duration
	logger   logging.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps inner. attempts is the total number of Submit calls
// (minimum 1); backoff is the wait before the first retry.
func NewRetrying(inner interfaces.ScanQueue, attempts int, backoff time.Duration, logger logging.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Retrying{
		ScanQueue: inner,
		attempts:  attempts,
		backoff:   backoff,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

func (r *Retrying) Submit(ctx context.Context, job model.ScanJob) (string, error) {
	if job.ID == "" {
		// one id across attempts, so a retry after a lost reply is detectable
		job.ID = NewJobID(time.Now())
	}

	wait := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		id, err := r.ScanQueue.Submit(ctx, job)
		if err == nil {
			return id, nil
		}
		if attempt > 1 && errors.Is(err, model.ErrAlreadyExists) {
			// an earlier attempt landed even though it reported an error
			return job.ID, nil
		}
		if !errors.Is(err, model.ErrUpstreamUnavailable) {
			return "", err
		}
		lastErr = err
		if attempt == r.attempts {
			break
		}
		r.logger.Warn("retrying scan submission",
			logging.F("attempt", attempt), logging.F("backoff", wait), logging.Err(err))
		if err := r.sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("submit retry aborted: %w", err)
		}
		wait *= 2
	}
	return "", fmt.Errorf("submit failed after %d attempts: %w", r.attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
