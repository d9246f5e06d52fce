// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/model"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns the number of warnings recorded so far.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── Publisher ─────────────────────────────────────────────────────────

// DummyPublisher implements interfaces.EventPublisher and records every event.
// Set Err to make Publish fail after recording.
type DummyPublisher struct {
	mu     sync.Mutex
	events []model.Event
	Err    error
}

func (p *DummyPublisher) Publish(_ context.Context, ev model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.Err
}

// Events returns a copy of the recorded events.
func (p *DummyPublisher) Events() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Event, len(p.events))
	copy(out, p.events)
	return out
}

// OfType returns recorded events with type t.
func (p *DummyPublisher) OfType(t model.EventType) []model.Event {
	var out []model.Event
	for _, ev := range p.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// ─── Queue ─────────────────────────────────────────────────────────────

// FlakyQueue implements interfaces.ScanQueue. Submit fails with SubmitErr for
// the first FailSubmits calls and succeeds afterwards.
type FlakyQueue struct {
	mu          sync.Mutex
	FailSubmits int
	SubmitErr   error
	Calls       int
	jobs        map[string]model.ScanJob
	order       []string
}

func (q *FlakyQueue) Submit(_ context.Context, job model.ScanJob) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Calls++
	if q.Calls <= q.FailSubmits {
		return "", q.SubmitErr
	}
	if q.jobs == nil {
		q.jobs = make(map[string]model.ScanJob)
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", q.Calls)
	}
	job.Status = model.JobQueued
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	return job.ID, nil
}

func (q *FlakyQueue) Status(_ context.Context, id string) (model.ScanJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return model.ScanJob{}, model.ErrNotFound
	}
	return job, nil
}

func (q *FlakyQueue) Recent(_ context.Context, limit int) ([]model.ScanJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.ScanJob
	for i := len(q.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, q.jobs[q.order[i]])
	}
	return out, nil
}

// SubmitCalls returns how many times Submit was called.
func (q *FlakyQueue) SubmitCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Calls
}

// ─── Clock ─────────────────────────────────────────────────────────────

// FakeClock returns a fixed time that tests can advance.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock { return &FakeClock{now: t} }

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
