package service

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/verif-infra/sim-acceptor/reporting"
)

// DefaultRunStoreSize bounds how many past runs the status API can serve.
const DefaultRunStoreSize = 64

// RunStore keeps the most recent regression reports in memory for the
// status API. Old runs are evicted once the store is full; the archived
// log directories remain the durable record.
type RunStore struct {
	mu     sync.RWMutex
	cache  *lru.Cache
	order  []string // run IDs, oldest first, trimmed on eviction
	latest *reporting.ReportData
}

// NewRunStore creates a RunStore holding up to size runs.
func NewRunStore(size int) (*RunStore, error) {
	if size <= 0 {
		size = DefaultRunStoreSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create run cache: %w", err)
	}
	return &RunStore{cache: cache}, nil
}

// Add records a completed run, replacing any previous entry with the same run ID.
func (s *RunStore) Add(report *reporting.ReportData) {
	if report == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cache.Contains(report.RunID) {
		s.order = append(s.order, report.RunID)
	}
	s.cache.Add(report.RunID, report)
	s.latest = report

	// Drop order entries for runs the cache has evicted
	for len(s.order) > 0 && !s.cache.Contains(s.order[0]) {
		s.order = s.order[1:]
	}
}

// Get returns the report for a run ID.
func (s *RunStore) Get(runID string) (*reporting.ReportData, bool) {
	v, ok := s.cache.Get(runID)
	if !ok {
		return nil, false
	}
	report, ok := v.(*reporting.ReportData)
	return report, ok
}

// Latest returns the most recently added report.
func (s *RunStore) Latest() (*reporting.ReportData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, false
	}
	return s.latest, true
}

// List returns all stored reports, most recent first.
func (s *RunStore) List() []*reporting.ReportData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make([]*reporting.ReportData, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if v, ok := s.cache.Peek(s.order[i]); ok {
			if report, ok := v.(*reporting.ReportData); ok {
				reports = append(reports, report)
			}
		}
	}
	return reports
}

// Len returns the number of stored runs.
func (s *RunStore) Len() int {
	return s.cache.Len()
}
