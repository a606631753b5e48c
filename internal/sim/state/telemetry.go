package state

import (
	"errors"
	"sort"
	"sync"

	"github.com/signalsfoundry/supplychain-env/model"
)

// MetricsStore is a concurrency-safe store of per-tick engine metrics.
// It stores and returns copies so callers cannot mutate committed ticks.
type MetricsStore struct {
	mu         sync.RWMutex
	maxHistory int
	byTick     map[int]*model.TickMetrics
	ticks      []int
}

// NewMetricsStore creates a store retaining at most maxHistory ticks (zero
// keeps everything).
func NewMetricsStore(maxHistory int) *MetricsStore {
	return &MetricsStore{
		maxHistory: maxHistory,
		byTick:     make(map[int]*model.TickMetrics),
	}
}

// Put stores a copy of m under m.Tick.
func (s *MetricsStore) Put(m *model.TickMetrics) error {
	if m == nil {
		return errors.New("tick metrics is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTick[m.Tick]; !exists {
		i := sort.SearchInts(s.ticks, m.Tick)
		s.ticks = append(s.ticks, 0)
		copy(s.ticks[i+1:], s.ticks[i:])
		s.ticks[i] = m.Tick
	}
	s.byTick[m.Tick] = m.Clone()

	if s.maxHistory > 0 {
		for len(s.ticks) > s.maxHistory {
			delete(s.byTick, s.ticks[0])
			s.ticks = s.ticks[1:]
		}
	}
	return nil
}

// Get returns a copy of the metrics committed for tick, or nil.
func (s *MetricsStore) Get(tick int) *model.TickMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byTick[tick].Clone()
}

// Latest returns a copy of the most recent metrics, or nil when empty.
func (s *MetricsStore) Latest() *model.TickMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ticks) == 0 {
		return nil
	}
	return s.byTick[s.ticks[len(s.ticks)-1]].Clone()
}

// Reset drops all stored ticks.
func (s *MetricsStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTick = make(map[int]*model.TickMetrics)
	s.ticks = nil
}
