// Package scheduler wires up the cron job that periodically queues a scan
// for every configured category.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/model"
)

// Trigger queues a scan. *app.Service satisfies it.
type Trigger interface {
	TriggerScan(ctx context.Context, req model.ScanRequest) (model.ScanJob, error)
}

// Scheduler wraps robfig/cron and manages the periodic scan cycle.
type Scheduler struct {
	cron       *cron.Cron
	spec       string // cron spec, e.g. "@every 10m"
	categories []string
	trigger    Trigger
	logger     logging.Logger

	mu      sync.Mutex
	entry   cron.EntryID
	started bool
}

// New creates a Scheduler that queues one scan per category on spec.
func New(spec string, categories []string, trigger Trigger, logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With(logging.F("component", "scheduler"))
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cronLogger{logger})),
		spec:       spec,
		categories: append([]string(nil), categories...),
		trigger:    trigger,
		logger:     logger,
	}
}

// Start registers the job and starts the scheduler. When runNow is set one
// cycle also runs immediately so the feed is populated without waiting for
// the first tick.
func (s *Scheduler) Start(ctx context.Context, runNow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	id, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: schedule %q: %v", model.ErrInvalidArgument, s.spec, err)
	}
	s.entry = id
	s.started = true

	s.cron.Start()
	s.logger.Info("cron started", logging.F("spec", s.spec), logging.F("categories", len(s.categories)))

	if runNow {
		go s.RunOnce(ctx)
	}
	return nil
}

// Stop halts the scheduler and waits for a running cycle to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("cron stopped")
}

// Next reports when the next cycle fires. It is zero before Start.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	id, started := s.entry, s.started
	s.mu.Unlock()
	if !started {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// RunOnce queues a scan for every category and returns how many were
// accepted. Failures are logged and do not stop the cycle.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.logger.Info("scan cycle started")
	queued := 0
	for _, c := range s.categories {
		if ctx.Err() != nil {
			break
		}
		job, err := s.trigger.TriggerScan(ctx, model.ScanRequest{Category: c})
		if err != nil {
			s.logger.Warn("queueing scheduled scan", logging.F("category", c), logging.Err(err))
			continue
		}
		s.logger.Debug("queued scheduled scan", logging.F("category", c), logging.F("job_id", job.ID))
		queued++
	}
	s.logger.Info("scan cycle complete", logging.F("queued", queued))
	return queued
}

// cronLogger routes cron's own logging through logging.Logger.
type cronLogger struct {
	l logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), logging.Err(err))...)
}

func kvFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logging.F(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
