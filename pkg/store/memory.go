package store

import (
	"sync"

	"tailbeacon/pkg/model"
)

const defaultHistory = 50

// MemoryStore keeps the latest run and a bounded history in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	latest  *model.DiscoveryRun
	beacons map[string]model.Beacon
	history []model.DiscoveryRun // newest last
	max     int
}

func NewMemoryStore(history int) *MemoryStore {
	if history <= 0 {
		history = defaultHistory
	}
	return &MemoryStore{beacons: map[string]model.Beacon{}, max: history}
}

func (m *MemoryStore) SaveRun(run model.DiscoveryRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := run
	m.latest = &r
	m.beacons = make(map[string]model.Beacon, len(run.Beacons))
	for _, b := range run.Beacons {
		m.beacons[b.Key()] = b
	}
	m.history = append(m.history, run)
	if over := len(m.history) - m.max; over > 0 {
		m.history = append([]model.DiscoveryRun(nil), m.history[over:]...)
	}
	return nil
}

func (m *MemoryStore) Latest() (model.DiscoveryRun, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return model.DiscoveryRun{}, false, nil
	}
	return *m.latest, true, nil
}

// ListBeacons returns the latest run's beacons in the order the run reported them.
func (m *MemoryStore) ListBeacons() ([]model.Beacon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return []model.Beacon{}, nil
	}
	return append([]model.Beacon{}, m.latest.Beacons...), nil
}

func (m *MemoryStore) GetBeacon(key string) (model.Beacon, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.beacons[key]
	return b, ok, nil
}

// ListRuns returns up to limit runs, newest first.
func (m *MemoryStore) ListRuns(limit int) ([]model.DiscoveryRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]model.DiscoveryRun, 0, limit)
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.history[i])
	}
	return out, nil
}

// Ping reports readiness for health endpoints.
func (m *MemoryStore) Ping() error { return nil }
