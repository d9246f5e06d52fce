// Package worker processes scan jobs: it claims queued jobs, runs a Scanner
// over them, records what the scanner finds and finishes the job. A Reaper
// fails jobs that overrun their deadline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/metrics"
	"github.com/raysh454/flipradar/internal/model"
)

// Scanner finds candidate opportunities for one job. Implementations must
// return promptly once ctx is done.
type Scanner interface {
	Scan(ctx context.Context, job model.ScanJob) ([]model.OpportunityInput, error)
}

// Recorder stores a discovered opportunity. *app.Service satisfies it.
type Recorder interface {
	RecordOpportunity(ctx context.Context, in model.OpportunityInput) (model.Opportunity, error)
}

type RunnerConfig struct {
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Runner polls the queue and hands claimed jobs to a Pool.
type Runner struct {
	cfg      RunnerConfig
	jobs     interfaces.ScanWorker
	scanner  Scanner
	recorder Recorder
	logger   logging.Logger
}

func NewRunner(cfg RunnerConfig, jobs interfaces.ScanWorker, scanner Scanner, recorder Recorder, logger logging.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{
		cfg:      cfg,
		jobs:     jobs,
		scanner:  scanner,
		recorder: recorder,
		logger:   logger.With(logging.F("component", "worker")),
	}
}

// Run submits a drain task to pool on every poll tick until ctx is done.
// It should be run in a goroutine.
func (r *Runner) Run(ctx context.Context, pool *Pool) error {
	r.logger.Info("scan worker started", logging.F("poll_interval", r.cfg.PollInterval.String()), logging.F("concurrency", pool.Size()))
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("scan worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := pool.Submit(r.drain); err != nil && !errors.Is(err, ErrPoolFull) {
				r.logger.Warn("submitting drain task", logging.Err(err))
			}
		}
	}
}

// drain processes jobs until the queue is empty.
func (r *Runner) drain(ctx context.Context) error {
	for ctx.Err() == nil {
		ok, err := r.ProcessOne(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// ProcessOne claims and processes a single job. It reports false when the
// queue had nothing to claim. A scan failure fails the job and is not
// returned; only queue errors are.
func (r *Runner) ProcessOne(ctx context.Context) (bool, error) {
	job, err := r.jobs.Claim(ctx)
	if errors.Is(err, model.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}

	start := time.Now()
	log := r.logger.With(logging.F("job_id", job.ID), logging.F("category", job.Category))
	log.Info("processing scan job")

	jctx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	found, scanErr := r.scan(jctx, log, job)
	cancel()

	// The job must be finished even when ctx was cancelled mid-scan.
	fctx := context.WithoutCancel(ctx)
	status := model.JobCompleted
	if scanErr != nil {
		status = model.JobFailed
		err = r.jobs.Fail(fctx, job.ID, scanErr.Error())
	} else {
		err = r.jobs.Complete(fctx, job.ID, model.ScanResult{Found: found})
	}
	if errors.Is(err, model.ErrInvalidTransition) {
		// The reaper got there first.
		log.Warn("job finished elsewhere", logging.Err(err))
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("finishing job %s: %w", job.ID, err)
	}

	metrics.ScanJobFinished(string(status))
	fields := []logging.Field{
		logging.F("status", string(status)),
		logging.F("found", found),
		logging.F("duration_ms", time.Since(start).Milliseconds()),
	}
	if scanErr != nil {
		log.Error("scan job failed", append(fields, logging.Err(scanErr))...)
	} else {
		log.Info("scan job finished", fields...)
	}
	return true, nil
}

func (r *Runner) scan(ctx context.Context, log logging.Logger, job model.ScanJob) (int, error) {
	inputs, err := r.scanner.Scan(ctx, job)
	if err != nil {
		return 0, err
	}
	found := 0
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		if _, err := r.recorder.RecordOpportunity(ctx, in); err != nil {
			if errors.Is(err, model.ErrInvalidArgument) {
				log.Warn("skipping invalid listing", logging.F("title", in.ProductTitle), logging.Err(err))
				continue
			}
			return found, err
		}
		found++
	}
	return found, nil
}
