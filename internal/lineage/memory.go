package lineage

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// MemoryStore is an in-process append-only Store
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]*domain.CalculationRun
	order []string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*domain.CalculationRun)}
}

// Append stores a copy of run; a run id can be written only once
func (s *MemoryStore) Append(_ context.Context, run *domain.CalculationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.RunID]; ok {
		return eris.Errorf("lineage: run %s already recorded", run.RunID)
	}
	s.runs[run.RunID] = run.Clone()
	s.order = append(s.order, run.RunID)
	return nil
}

// Get returns a copy of a stored run
func (s *MemoryStore) Get(_ context.Context, runID string) (*domain.CalculationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, eris.Wrapf(domain.ErrNotFound, "lineage: run %s", runID)
	}
	return run.Clone(), nil
}

// List returns copies of an entity's runs in append order. An empty entity
// id lists every run.
func (s *MemoryStore) List(_ context.Context, entityID string) ([]*domain.CalculationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.CalculationRun
	for _, id := range s.order {
		run := s.runs[id]
		if entityID == "" || run.EntityID == entityID {
			out = append(out, run.Clone())
		}
	}
	return out, nil
}
