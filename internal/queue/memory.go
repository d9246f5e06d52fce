package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/model"
)

// MemoryQueue is a FIFO queue held in process memory.
type MemoryQueue struct {
	opts options

	mu      sync.Mutex
	jobs    map[string]*model.ScanJob
	pending []string // FIFO of queued ids
	order   []string // every id in submission order
}

var _ interfaces.JobQueue = (*MemoryQueue)(nil)

func NewMemoryQueue(opts ...Option) *MemoryQueue {
	return &MemoryQueue{
		opts: buildOptions(opts),
		jobs: make(map[string]*model.ScanJob),
	}
}

func (q *MemoryQueue) Submit(ctx context.Context, job model.ScanJob) (string, error) {
	job = prepare(job, q.opts.now())

	q.mu.Lock()
	if q.opts.maxPending > 0 && len(q.pending) >= q.opts.maxPending {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: queue full (%d pending)", model.ErrUpstreamUnavailable, q.opts.maxPending)
	}
	if _, ok := q.jobs[job.ID]; ok {
		q.mu.Unlock()
		return "", fmt.Errorf("job %s: %w", job.ID, model.ErrAlreadyExists)
	}
	q.pruneLocked(q.opts.now())
	q.jobs[job.ID] = &job
	q.pending = append(q.pending, job.ID)
	q.order = append(q.order, job.ID)
	q.mu.Unlock()

	q.opts.logger.Info("scan job queued", logging.F("job_id", job.ID), logging.F("category", job.Category))
	return job.ID, nil
}

func (q *MemoryQueue) Status(ctx context.Context, id string) (model.ScanJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return model.ScanJob{}, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	return copyJob(job), nil
}

func (q *MemoryQueue) Recent(ctx context.Context, limit int) ([]model.ScanJob, error) {
	limit = recentLimit(limit)
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.ScanJob, 0, min(limit, len(q.order)))
	for i := len(q.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyJob(q.jobs[q.order[i]]))
	}
	return out, nil
}

func (q *MemoryQueue) Claim(ctx context.Context) (model.ScanJob, error) {
	q.mu.Lock()
	var claimed *model.ScanJob
	for len(q.pending) > 0 && claimed == nil {
		id := q.pending[0]
		q.pending = q.pending[1:]
		if len(q.pending) == 0 {
			q.pending = nil
		}
		if job := q.jobs[id]; job != nil && job.Status == model.JobQueued {
			claimed = job
		}
	}
	if claimed == nil {
		q.mu.Unlock()
		return model.ScanJob{}, model.ErrNoJob
	}
	now := q.opts.now().UTC()
	claimed.Status = model.JobRunning
	claimed.StartedAt = &now
	claimed.Attempts++
	out := copyJob(claimed)
	q.mu.Unlock()

	q.opts.emit(ctx, model.EventScanStarted, out)
	return out, nil
}

func (q *MemoryQueue) Complete(ctx context.Context, id string, res model.ScanResult) error {
	if res.Found < 0 {
		return fmt.Errorf("%w: found must not be negative", model.ErrInvalidArgument)
	}
	return q.finish(ctx, id, model.JobCompleted, res.Found, "")
}

func (q *MemoryQueue) Fail(ctx context.Context, id string, reason string) error {
	return q.finish(ctx, id, model.JobFailed, -1, reason)
}

// ExpireRunning fails running jobs whose StartedAt is before cutoff.
func (q *MemoryQueue) ExpireRunning(ctx context.Context, cutoff time.Time) (int, error) {
	q.mu.Lock()
	var stale []string
	for _, id := range q.order {
		job := q.jobs[id]
		if job.Status == model.JobRunning && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	q.mu.Unlock()

	expired := 0
	for _, id := range stale {
		err := q.Fail(ctx, id, TimedOutReason)
		if err == nil {
			expired++
			continue
		}
		// finished between the scan and the fail
		if errors.Is(err, model.ErrInvalidTransition) {
			continue
		}
		return expired, err
	}
	return expired, nil
}

func (q *MemoryQueue) Close() error { return nil }

// finish moves a running job to status. found < 0 keeps the current count.
func (q *MemoryQueue) finish(ctx context.Context, id string, status model.JobStatus, found int, reason string) error {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	if job.Status != model.JobRunning {
		cur := job.Status
		q.mu.Unlock()
		return fmt.Errorf("job %s is %s, cannot become %s: %w", id, cur, status, model.ErrInvalidTransition)
	}
	now := q.opts.now().UTC()
	job.Status = status
	job.FinishedAt = &now
	job.Error = reason
	if found >= 0 {
		job.Found = found
	}
	out := copyJob(job)
	q.mu.Unlock()

	q.opts.logger.Info("scan job finished",
		logging.F("job_id", id), logging.F("status", string(status)), logging.F("found", out.Found))
	q.opts.emit(ctx, model.EventScanCompleted, out)
	return nil
}

// pruneLocked forgets finished jobs older than the retention window. order
// is in submission order and a job cannot finish before it was submitted, so
// the walk stops at the first job submitted after the cutoff.
func (q *MemoryQueue) pruneLocked(now time.Time) {
	if q.opts.retention <= 0 {
		return
	}
	cutoff := now.Add(-q.opts.retention)

	var (
		kept   []string
		pruned int
		i      int
	)
	for ; i < len(q.order); i++ {
		id := q.order[i]
		job := q.jobs[id]
		if !job.SubmittedAt.Before(cutoff) {
			break
		}
		if job.Status.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	if pruned == 0 {
		return
	}
	q.order = append(kept, q.order[i:]...)
	q.opts.logger.Debug("pruned finished scan jobs", logging.F("count", pruned))
}

func copyJob(j *model.ScanJob) model.ScanJob {
	out := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
