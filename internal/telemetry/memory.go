package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"pumpguard/internal/model"
)

type series struct {
	rows []model.Reading
	head int
}

func (s *series) live() []model.Reading {
	return s.rows[s.head:]
}

// add keeps rows ordered by timestamp; out-of-order readings are inserted in place.
func (s *series) add(r model.Reading) {
	live := s.live()
	if n := len(live); n == 0 || !r.Timestamp.Before(live[n-1].Timestamp) {
		s.rows = append(s.rows, r)
		return
	}
	i := sort.Search(len(live), func(i int) bool { return live[i].Timestamp.After(r.Timestamp) })
	pos := s.head + i
	s.rows = append(s.rows, model.Reading{})
	copy(s.rows[pos+1:], s.rows[pos:])
	s.rows[pos] = r
}

func (s *series) evict(cutoff time.Time, capacity int) {
	for s.head < len(s.rows) {
		if capacity > 0 && len(s.rows)-s.head > capacity {
			s.head++
			continue
		}
		if !s.rows[s.head].Timestamp.Before(cutoff) {
			break
		}
		s.head++
	}
	if s.head > 0 && s.head*2 >= len(s.rows) {
		s.rows = append([]model.Reading{}, s.rows[s.head:]...)
		s.head = 0
	}
}

// Memory is a bounded in-process Store: per equipment, readings older than the retention or
// beyond the capacity are dropped.
type Memory struct {
	mu        sync.RWMutex
	retention time.Duration
	capacity  int
	data      map[string]*series
	now       func() time.Time
}

func NewMemory(retention time.Duration, capacity int) *Memory {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Memory{
		retention: retention,
		capacity:  capacity,
		data:      make(map[string]*series),
		now:       time.Now,
	}
}

func (m *Memory) Append(_ context.Context, readings ...model.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.retention)
	touched := map[*series]struct{}{}
	for _, r := range readings {
		if err := ValidateEquipmentID(r.EquipmentID); err != nil {
			return err
		}
		s, ok := m.data[r.EquipmentID]
		if !ok {
			s = &series{rows: make([]model.Reading, 0, 128)}
			m.data[r.EquipmentID] = s
		}
		r = copyReading(r)
		s.add(r)
		touched[s] = struct{}{}
	}
	for s := range touched {
		s.evict(cutoff, m.capacity)
	}
	return nil
}

func (m *Memory) Latest(_ context.Context, equipmentID string) (model.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[equipmentID]
	if !ok || len(s.live()) == 0 {
		return model.Reading{}, ErrNoData
	}
	live := s.live()
	return copyReading(live[len(live)-1]), nil
}

func (m *Memory) Recent(_ context.Context, equipmentID string, window time.Duration, limit int) ([]model.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[equipmentID]
	if !ok {
		return []model.Reading{}, nil
	}
	cutoff := m.now().Add(-window)
	live := s.live()
	start := sort.Search(len(live), func(i int) bool { return !live[i].Timestamp.Before(cutoff) })
	rows := live[start:]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return copyReadings(rows), nil
}

func (m *Memory) Range(_ context.Context, equipmentID string, start, stop time.Time, limit int) ([]model.Reading, error) {
	if err := ValidateEquipmentID(equipmentID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[equipmentID]
	if !ok {
		return []model.Reading{}, nil
	}
	live := s.live()
	from := sort.Search(len(live), func(i int) bool { return !live[i].Timestamp.Before(start) })
	to := sort.Search(len(live), func(i int) bool { return !live[i].Timestamp.Before(stop) })
	if to < from {
		to = from
	}
	rows := live[from:to]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return copyReadings(rows), nil
}

func (m *Memory) Stats(ctx context.Context, equipmentID string, window time.Duration) (map[model.SensorKey]model.SensorStats, error) {
	rows, err := m.Recent(ctx, equipmentID, window, 0)
	if err != nil {
		return nil, err
	}
	values := map[model.SensorKey][]float64{}
	for _, r := range rows {
		for k, v := range r.Values {
			values[k] = append(values[k], v)
		}
	}
	return summarize(values), nil
}

func (m *Memory) Equipment(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.data))
	for id, s := range m.data {
		if len(s.live()) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }

func copyReadings(rows []model.Reading) []model.Reading {
	out := make([]model.Reading, len(rows))
	for i, r := range rows {
		out[i] = copyReading(r)
	}
	return out
}

func copyReading(r model.Reading) model.Reading {
	r.Values = copySnapshot(r.Values)
	if r.ML != nil {
		ml := *r.ML
		r.ML = &ml
	}
	return r
}

func copySnapshot(in model.Snapshot) model.Snapshot {
	out := make(model.Snapshot, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
