package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/listingurl"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/metrics"
	"github.com/raysh454/flipradar/internal/model"
)

const (
	ServiceName = "flipradar"
	Version     = "1.0.0"

	// statusWindow is how many recent jobs ScanStatus inspects.
	statusWindow = 200
	// DefaultJobListLimit bounds ListScanJobs when no limit is given.
	DefaultJobListLimit = 20
)

// ScanStatus summarises scanning activity for the dashboard.
type ScanStatus struct {
	IsScanning         bool       `json:"is_scanning"`
	LastScan           *time.Time `json:"last_scan"`
	NextScan           *time.Time `json:"next_scan"`
	Queued             int        `json:"queued"`
	Running            int        `json:"running"`
	MarketplacesActive int        `json:"marketplaces_active"`
	CategoriesActive   int        `json:"categories_active"`
}

// Service is the opportunity API's application layer. It reads from the
// store, submits scans to the queue and records what workers find.
type Service struct {
	cfg       *Config
	store     interfaces.OpportunityStore
	queue     interfaces.ScanQueue
	publisher interfaces.EventPublisher
	logger    logging.Logger

	now   func() time.Time
	newID func() string

	schedMu  sync.RWMutex
	nextScan func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how opportunity ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService wires the service. publisher may be nil, in which case
// discovery events are not published.
func NewService(cfg *Config, st interfaces.OpportunityStore, q interfaces.ScanQueue, pub interfaces.EventPublisher, logger logging.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{
		cfg:       cfg,
		store:     st,
		queue:     q,
		publisher: pub,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// SetSchedule registers the function reporting the next periodic scan.
func (s *Service) SetSchedule(next func() time.Time) {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	s.nextScan = next
}

// ListOpportunities returns stored opportunities matching f.
func (s *Service) ListOpportunities(ctx context.Context, f model.Filter) ([]model.Opportunity, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}
	opps, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing opportunities: %w", err)
	}
	return opps, nil
}

// GetOpportunity returns one opportunity by id.
func (s *Service) GetOpportunity(ctx context.Context, id string) (model.Opportunity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Opportunity{}, fmt.Errorf("%w: opportunity id is required", model.ErrInvalidArgument)
	}
	return s.store.Get(ctx, id)
}

// TriggerScan queues a scan and returns without waiting for it to run.
// Every call creates a new job.
func (s *Service) TriggerScan(ctx context.Context, req model.ScanRequest) (model.ScanJob, error) {
	job := model.ScanJob{
		Category:    model.NormalizeCategory(req.Category),
		Status:      model.JobQueued,
		SubmittedAt: s.now().UTC(),
	}
	id, err := s.queue.Submit(ctx, job)
	if err != nil {
		metrics.ScanSubmitFailed()
		s.logger.Warn("submitting scan", logging.F("category", job.Category), logging.Err(err))
		return model.ScanJob{}, fmt.Errorf("submitting scan: %w", err)
	}
	job.ID = id
	metrics.ScanSubmitted(job.Category)
	s.logger.Info("scan triggered", logging.F("job_id", id), logging.F("category", job.Category))
	return job, nil
}

// GetStatsSummary aggregates the store on every call.
func (s *Service) GetStatsSummary(ctx context.Context) (model.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("computing stats: %w", err)
	}
	return st, nil
}

// GetDailyStats aggregates the current UTC day.
func (s *Service) GetDailyStats(ctx context.Context) (model.DailyStats, error) {
	st, err := s.store.DailyStats(ctx, s.now())
	if err != nil {
		return model.DailyStats{}, fmt.Errorf("computing daily stats: %w", err)
	}
	return st, nil
}

// GetPerformance reports the all-time approval funnel.
func (s *Service) GetPerformance(ctx context.Context) (model.Performance, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return model.Performance{}, fmt.Errorf("computing performance: %w", err)
	}
	return model.PerformanceFrom(st), nil
}

// RecordOpportunity validates in, stores the resulting record and publishes
// opportunity.discovered. The source URL is stored in canonical form. A
// publish failure is logged, not returned.
func (s *Service) RecordOpportunity(ctx context.Context, in model.OpportunityInput) (model.Opportunity, error) {
	if in.SourceURL != "" {
		canon, err := listingurl.Canonical(in.SourceURL)
		if err != nil {
			return model.Opportunity{}, fmt.Errorf("%w: source_url: %v", model.ErrInvalidArgument, err)
		}
		in.SourceURL = canon
	}

	now := s.now()
	o, err := model.NewOpportunity(in, s.cfg.Fees.DefaultRate, s.newID(), now)
	if err != nil {
		return model.Opportunity{}, err
	}
	if err := s.store.Add(ctx, o); err != nil {
		return model.Opportunity{}, fmt.Errorf("storing opportunity: %w", err)
	}
	metrics.OpportunityRecorded(o.Category, string(o.AIDecision))

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, model.DiscoveredEvent(o, now)); err != nil {
			s.logger.Warn("publishing discovery", logging.F("id", o.ID), logging.Err(err))
		}
	}
	s.logger.Debug("recorded opportunity",
		logging.F("id", o.ID), logging.F("category", o.Category), logging.F("profit", o.EstimatedProfit))
	return o, nil
}

// ApprovePurchase records an operator's approval. Approving the same
// opportunity again returns the original approval.
func (s *Service) ApprovePurchase(ctx context.Context, opportunityID string) (model.Purchase, error) {
	opportunityID = strings.TrimSpace(opportunityID)
	if opportunityID == "" {
		return model.Purchase{}, fmt.Errorf("%w: opportunity_id is required", model.ErrInvalidArgument)
	}
	p, err := s.store.RecordPurchase(ctx, opportunityID, model.Purchase{
		OpportunityID: opportunityID,
		ApprovedAt:    s.now().UTC(),
	})
	if err != nil {
		return model.Purchase{}, err
	}
	metrics.PurchaseApproved()
	s.logger.Info("purchase approved", logging.F("opportunity_id", opportunityID))
	return p, nil
}

// ScanStatus reports activity over the most recent jobs.
func (s *Service) ScanStatus(ctx context.Context) (ScanStatus, error) {
	jobs, err := s.queue.Recent(ctx, statusWindow)
	if err != nil {
		return ScanStatus{}, fmt.Errorf("reading recent scans: %w", err)
	}

	st := ScanStatus{
		MarketplacesActive: len(s.cfg.Scan.Marketplaces),
		CategoriesActive:   len(s.cfg.Scan.Categories),
	}
	for _, j := range jobs {
		switch j.Status {
		case model.JobQueued:
			st.Queued++
		case model.JobRunning:
			st.Running++
		}
		if j.Status.Terminal() && j.FinishedAt != nil {
			if st.LastScan == nil || j.FinishedAt.After(*st.LastScan) {
				t := *j.FinishedAt
				st.LastScan = &t
			}
		}
	}
	st.IsScanning = st.Running > 0

	s.schedMu.RLock()
	next := s.nextScan
	s.schedMu.RUnlock()
	if next != nil {
		if t := next(); !t.IsZero() {
			t = t.UTC()
			st.NextScan = &t
		}
	}
	return st, nil
}

// GetScanJob returns one job by id.
func (s *Service) GetScanJob(ctx context.Context, id string) (model.ScanJob, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.ScanJob{}, fmt.Errorf("%w: job id is required", model.ErrInvalidArgument)
	}
	return s.queue.Status(ctx, id)
}

// ListScanJobs returns up to limit jobs, newest first. 0 means the default.
func (s *Service) ListScanJobs(ctx context.Context, limit int) ([]model.ScanJob, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive", model.ErrInvalidArgument)
	}
	if limit == 0 {
		limit = DefaultJobListLimit
	}
	jobs, err := s.queue.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	if jobs == nil {
		jobs = []model.ScanJob{}
	}
	return jobs, nil
}

// Ping checks the store with a cheap read, for health reporting.
func (s *Service) Ping(ctx context.Context) error {
	if _, err := s.store.Stats(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: store: %v", model.ErrUpstreamUnavailable, err)
	}
	return nil
}
