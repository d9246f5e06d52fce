package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/model"
)

// MemoryStore keeps everything in process memory. Reads take a shared lock and
// copy the records out, so writers only wait for the copy.
type MemoryStore struct {
	mu        sync.RWMutex
	opps      map[string]model.Opportunity
	purchases map[string]model.Purchase
}

var _ interfaces.OpportunityStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		opps:      make(map[string]model.Opportunity),
		purchases: make(map[string]model.Purchase),
	}
}

func (s *MemoryStore) Add(ctx context.Context, o model.Opportunity) error {
	if o.ID == "" {
		return fmt.Errorf("%w: opportunity id is required", model.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.opps[o.ID]; ok {
		return fmt.Errorf("opportunity %s: %w", o.ID, model.ErrAlreadyExists)
	}
	s.opps[o.ID] = o
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (model.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.opps[id]
	if !ok {
		return model.Opportunity{}, fmt.Errorf("opportunity %s: %w", id, model.ErrNotFound)
	}
	return o, nil
}

func (s *MemoryStore) List(ctx context.Context, f model.Filter) ([]model.Opportunity, error) {
	return model.ApplyFilter(s.snapshot(), f)
}

func (s *MemoryStore) RecordPurchase(ctx context.Context, opportunityID string, p model.Purchase) (model.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.opps[opportunityID]; !ok {
		return model.Purchase{}, fmt.Errorf("opportunity %s: %w", opportunityID, model.ErrNotFound)
	}
	if existing, ok := s.purchases[opportunityID]; ok {
		return existing, nil
	}
	p.OpportunityID = opportunityID
	s.purchases[opportunityID] = p
	return p, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (model.Stats, error) {
	s.mu.RLock()
	opps := make([]model.Opportunity, 0, len(s.opps))
	for _, o := range s.opps {
		opps = append(opps, o)
	}
	purchased := make(map[string]bool, len(s.purchases))
	for id := range s.purchases {
		purchased[id] = true
	}
	s.mu.RUnlock()
	return model.ComputeStats(opps, purchased), nil
}

func (s *MemoryStore) DailyStats(ctx context.Context, day time.Time) (model.DailyStats, error) {
	s.mu.RLock()
	opps := make([]model.Opportunity, 0, len(s.opps))
	for _, o := range s.opps {
		opps = append(opps, o)
	}
	purchases := make([]model.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		purchases = append(purchases, p)
	}
	s.mu.RUnlock()
	return model.ComputeDailyStats(opps, purchases, day), nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) snapshot() []model.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Opportunity, 0, len(s.opps))
	for _, o := range s.opps {
		out = append(out, o)
	}
	return out
}
