package station

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgreSQL or Supabase.
type InMemoryRepository struct {
	mu       sync.RWMutex
	stations map[string]*Station
	logs     []*StatusLog
}

// NewInMemoryRepository creates a new in-memory station repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		stations: make(map[string]*Station),
	}
}

// UpsertStation inserts or replaces a station.
func (r *InMemoryRepository) UpsertStation(_ context.Context, s *Station) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stations[s.StationID] = copyStation(s)
	return nil
}

// InsertStatusLogs appends logs.
func (r *InMemoryRepository) InsertStatusLogs(_ context.Context, logs []*StatusLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range logs {
		cpy := *l
		r.logs = append(r.logs, &cpy)
	}
	return nil
}

// ListStations returns all stations ordered by StationID.
func (r *InMemoryRepository) ListStations(_ context.Context) ([]*Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Station, 0, len(r.stations))
	for _, s := range r.stations {
		items = append(items, copyStation(s))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StationID < items[j].StationID })
	return items, nil
}

// LatestStatuses returns the most recent log of every station.
func (r *InMemoryRepository) LatestStatuses(_ context.Context) ([]*StatusLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := make(map[string]*StatusLog)
	for _, l := range r.logs {
		if cur, ok := latest[l.StationID]; !ok || l.LastReported.After(cur.LastReported) {
			latest[l.StationID] = l
		}
	}

	items := make([]*StatusLog, 0, len(latest))
	for _, l := range latest {
		cpy := *l
		items = append(items, &cpy)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StationID < items[j].StationID })
	return items, nil
}

// StatusHistory returns the logs of one station ordered by LastReported.
func (r *InMemoryRepository) StatusHistory(_ context.Context, stationID string, q HistoryQuery) ([]*StatusLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*StatusLog
	for _, l := range r.logs {
		if l.StationID == stationID && q.Contains(l.LastReported) {
			cpy := *l
			items = append(items, &cpy)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].LastReported.Before(items[j].LastReported) })
	return items, nil
}

// Ping always succeeds.
func (r *InMemoryRepository) Ping(_ context.Context) error {
	return nil
}

// LogCount returns the number of stored status logs.
func (r *InMemoryRepository) LogCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logs)
}

func copyStation(s *Station) *Station {
	cpy := *s
	if s.Address != nil {
		addr := *s.Address
		cpy.Address = &addr
	}
	return &cpy
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
