package model

import (
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a scan job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobRunning, JobCompleted, JobFailed:
		return true
	}
	return false
}

// AllCategories is the category value meaning "scan everything".
const AllCategories = "all"

// ScanRequest asks for a scan of one category, or all of them.
type ScanRequest struct {
	// Category to scan. Empty means all categories.
	Category string `json:"category"`
}

// ScanJob tracks a single scan request through the queue.
type ScanJob struct {
	ID          string     `json:"id"`
	Category    string     `json:"category"`
	Status      JobStatus  `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Found       int        `json:"found"`
	Attempts    int        `json:"attempts"`
}

// ScanResult is reported by a worker when a job completes.
type ScanResult struct {
	// Found is the number of opportunities the worker recorded.
	Found int `json:"found"`
}

// NormalizeCategory trims the category and maps the empty string to "all".
// "all" in any case is folded to the canonical lower-case form.
func NormalizeCategory(c string) string {
	c = strings.TrimSpace(c)
	if c == "" || strings.EqualFold(c, AllCategories) {
		return AllCategories
	}
	return c
}
