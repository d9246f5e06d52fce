// Package queue tracks scan jobs from submission to a terminal state. Backends
// implement interfaces.JobQueue; the API submits and reads, workers claim and
// finish, and a reaper expires jobs that ran too long.
package queue

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/model"
)

// TimedOutReason is recorded on jobs failed by ExpireRunning.
const TimedOutReason = "timed out"

// DefaultRecentLimit bounds Recent when the caller passes 0.
const DefaultRecentLimit = 50

// DefaultRetention is how long finished jobs stay readable.
const DefaultRetention = 7 * 24 * time.Hour

type options struct {
	publisher  interfaces.EventPublisher
	logger     logging.Logger
	now        func() time.Time
	maxPending int
	retention  time.Duration
}

// Option configures a queue backend.
type Option func(*options)

// WithPublisher emits scan.started and scan.completed through p.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMaxPending rejects submissions with model.ErrUpstreamUnavailable once n
// jobs are waiting. 0 disables the limit.
func WithMaxPending(n int) Option {
	return func(o *options) { o.maxPending = n }
}

// WithRetention drops completed and failed jobs that finished more than d
// ago. Pruning happens on Submit. 0 keeps every job.
func WithRetention(d time.Duration) Option {
	return func(o *options) { o.retention = d }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, retention: DefaultRetention}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	return o
}

// NewJobID returns a ULID string for t. IDs sort by submission time.
func NewJobID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// prepare fills in the fields Submit owns.
func prepare(job model.ScanJob, now time.Time) model.ScanJob {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = now.UTC()
	}
	if job.ID == "" {
		job.ID = NewJobID(job.SubmittedAt)
	}
	job.Category = model.NormalizeCategory(job.Category)
	job.Status = model.JobQueued
	job.StartedAt = nil
	job.FinishedAt = nil
	job.Error = ""
	job.Found = 0
	job.Attempts = 0
	return job
}

func (o options) emit(ctx context.Context, t model.EventType, job model.ScanJob) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, model.ScanEvent(t, job, o.now())); err != nil {
		o.logger.Warn("publishing scan event",
			logging.F("job_id", job.ID), logging.F("type", string(t)), logging.Err(err))
	}
}

func recentLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}
