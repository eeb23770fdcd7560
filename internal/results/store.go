// Package results keeps the latest assessment of each equipment for the API.
package results

import (
	"sort"
	"sync"
	"time"

	"pumpguard/internal/model"
)

type Store struct {
	mu        sync.RWMutex
	latest    map[string]model.Assessment
	updatedAt map[string]time.Time
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		latest:    make(map[string]model.Assessment),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

func (s *Store) Update(a model.Assessment) {
	if a.EquipmentID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[a.EquipmentID] = a
	s.updatedAt[a.EquipmentID] = time.Now().UTC()
	if len(s.latest) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(equipmentID string) (model.Assessment, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.latest[equipmentID]
	if !ok {
		return model.Assessment{}, time.Time{}, false
	}
	return a, s.updatedAt[equipmentID], true
}

// All returns the stored assessments ordered by equipment id.
func (s *Store) All() []model.Assessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Assessment, 0, len(s.latest))
	for _, a := range s.latest {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EquipmentID < out[j].EquipmentID })
	return out
}

func (s *Store) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, ts := range s.updatedAt {
		if oldestID == "" || ts.Before(oldest) {
			oldestID = id
			oldest = ts
		}
	}
	if oldestID != "" {
		delete(s.latest, oldestID)
		delete(s.updatedAt, oldestID)
	}
}

// Clear drops one equipment, or everything when equipmentID is empty.
func (s *Store) Clear(equipmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if equipmentID != "" {
		delete(s.latest, equipmentID)
		delete(s.updatedAt, equipmentID)
		return
	}
	s.latest = make(map[string]model.Assessment)
	s.updatedAt = make(map[string]time.Time)
}
