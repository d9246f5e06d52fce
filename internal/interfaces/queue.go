package interfaces

import (
	"context"
	"time"

	"github.com/raysh454/flipradar/internal/model"
)

// ScanQueue accepts scan requests from the API side.
type ScanQueue interface {
	// Submit assigns an id to job, stores it as queued and returns the id
	// without waiting for the scan to run.
	Submit(ctx context.Context, job model.ScanJob) (string, error)

	// Status returns the job with id or model.ErrNotFound.
	Status(ctx context.Context, id string) (model.ScanJob, error)

	// Recent returns up to limit jobs, newest submission first.
	Recent(ctx context.Context, limit int) ([]model.ScanJob, error)
}

// ScanWorker is the capability handed to whatever actually performs scans.
type ScanWorker interface {
	// Claim moves the oldest queued job to running and returns it.
	// It returns model.ErrNoJob when nothing is queued.
	Claim(ctx context.Context) (model.ScanJob, error)

	// Complete moves a running job to completed.
	Complete(ctx context.Context, id string, res model.ScanResult) error

	// Fail moves a running job to failed with reason.
	Fail(ctx context.Context, id string, reason string) error
}

// JobExpirer fails running jobs that have been running too long.
type JobExpirer interface {
	// ExpireRunning fails every running job started before cutoff and
	// returns how many were expired.
	ExpireRunning(ctx context.Context, cutoff time.Time) (int, error)
}

// JobQueue is the full surface implemented by queue backends.
type JobQueue interface {
	ScanQueue
	ScanWorker
	JobExpirer
	Close() error
}
