package engine

import (
	"sync"
	"time"

	"pumpguard/internal/model"
)

const dedupeCompactSize = 10000

// DedupeCache remembers which reading timestamps each equipment already delivered.
type DedupeCache struct {
	mu   sync.Mutex
	seen map[string]map[int64]time.Time
	size int
	// limit is the size that triggers the next compaction.
	limit int
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{seen: make(map[string]map[int64]time.Time), limit: dedupeCompactSize}
}

// Seen reports whether a reading with the same equipment and timestamp was recorded within ttl
// of now, recording r otherwise.
func (d *DedupeCache) Seen(r model.Reading, now time.Time, ttl time.Duration) bool {
	ts := r.Timestamp.UnixNano()
	d.mu.Lock()
	defer d.mu.Unlock()
	byTS := d.seen[r.EquipmentID]
	if byTS == nil {
		byTS = make(map[int64]time.Time)
		d.seen[r.EquipmentID] = byTS
	}
	first, ok := byTS[ts]
	if ok && now.Sub(first) <= ttl {
		return true
	}
	if !ok {
		d.size++
	}
	byTS[ts] = now
	if d.size > d.limit {
		d.compact(now, ttl)
		d.limit = max(dedupeCompactSize, 2*d.size)
	}
	return false
}

func (d *DedupeCache) compact(now time.Time, ttl time.Duration) {
	for id, byTS := range d.seen {
		for ts, first := range byTS {
			if now.Sub(first) > ttl {
				delete(byTS, ts)
				d.size--
			}
		}
		if len(byTS) == 0 {
			delete(d.seen, id)
		}
	}
}

// Reset forgets one equipment, or everything when equipmentID is empty.
func (d *DedupeCache) Reset(equipmentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if equipmentID == "" {
		d.seen = make(map[string]map[int64]time.Time)
		d.size = 0
		d.limit = dedupeCompactSize
		return
	}
	d.size -= len(d.seen[equipmentID])
	delete(d.seen, equipmentID)
}

func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}
