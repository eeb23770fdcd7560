package alerts

import (
	"sync"
	"time"

	"pumpguard/internal/model"
)

// Store is a bounded ring of the most recent alerts, oldest first.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Alert
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(alert model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, alert)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = alert
}

// Query filters by equipment (empty matches all) and start time, keeping the newest limit entries.
func (s *Store) Query(equipmentID string, since time.Time, limit int) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0)
	for _, a := range s.buf {
		if equipmentID != "" && a.EquipmentID != equipmentID {
			continue
		}
		if !since.IsZero() && a.Timestamp.Before(since) {
			continue
		}
		out = append(out, a)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *Store) List(limit int) []model.Alert {
	return s.Query("", time.Time{}, limit)
}

func (s *Store) Since(ts time.Time) []model.Alert {
	return s.Query("", ts, 0)
}

// Clear drops the alerts of one equipment, or all of them when equipmentID is empty.
func (s *Store) Clear(equipmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if equipmentID == "" {
		s.buf = nil
		return
	}
	kept := s.buf[:0]
	for _, a := range s.buf {
		if a.EquipmentID != equipmentID {
			kept = append(kept, a)
		}
	}
	s.buf = kept
}
