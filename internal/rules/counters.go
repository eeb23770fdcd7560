package rules

import (
	"maps"
	"sort"
	"sync"
	"time"

	"pumpguard/internal/model"
)

// Count is the number of consecutive out-of-band evaluations per severity for one sensor.
// At most one of the two fields is non-zero.
type Count struct {
	Warning int `json:"warning"`
	Failure int `json:"failure"`
}

// Counters is the persistence state of one equipment. Evaluate holds the lock for a whole pass.
type Counters struct {
	mu     sync.Mutex
	counts map[model.SensorKey]Count
	// prev is the state the sample taken at last was evaluated against.
	prev map[model.SensorKey]Count
	last time.Time
}

func NewCounters() *Counters {
	return &Counters{counts: make(map[model.SensorKey]Count)}
}

// bump must be called with mu held. It returns the updated count for sev.
func (c *Counters) bump(key model.SensorKey, sev model.Severity) int {
	st := c.counts[key]
	switch sev {
	case model.SeverityFailure:
		st.Failure++
		st.Warning = 0
		c.counts[key] = st
		return st.Failure
	case model.SeverityWarning:
		st.Warning++
		st.Failure = 0
		c.counts[key] = st
		return st.Warning
	default:
		delete(c.counts, key)
		return 0
	}
}

// ForSample returns the counters to evaluate a sample taken at ts with. A sample newer than the
// last one gets c itself and fresh is true. A repeat of an already evaluated sample gets a scratch
// copy of the state that sample first saw, so polling one reading never advances persistence.
func (c *Counters) ForSample(ts time.Time) (counters *Counters, fresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last.IsZero() || ts.After(c.last) {
		c.prev = maps.Clone(c.counts)
		c.last = ts
		return c, true
	}
	scratch := maps.Clone(c.prev)
	if scratch == nil {
		scratch = make(map[model.SensorKey]Count)
	}
	return &Counters{counts: scratch}, false
}

func (c *Counters) Get(key model.SensorKey) Count {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// Export copies the non-zero counts.
func (c *Counters) Export() map[model.SensorKey]Count {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[model.SensorKey]Count, len(c.counts))
	for k, v := range c.counts {
		if v.Warning != 0 || v.Failure != 0 {
			out[k] = v
		}
	}
	return out
}

// Import replaces the state with counts, dropping entries that would break the one-active invariant.
func (c *Counters) Import(counts map[model.SensorKey]Count) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[model.SensorKey]Count, len(counts))
	for k, v := range counts {
		if v.Warning < 0 || v.Failure < 0 || (v.Warning > 0 && v.Failure > 0) {
			continue
		}
		if v.Warning == 0 && v.Failure == 0 {
			continue
		}
		c.counts[k] = v
	}
}

func (c *Counters) Reset() {
	c.mu.Lock()
	c.counts = make(map[model.SensorKey]Count)
	c.prev = nil
	c.last = time.Time{}
	c.mu.Unlock()
}

// Registry owns one Counters per equipment id.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Counters
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Counters)}
}

// For returns the counters of equipmentID, creating them on first use. created reports whether
// this call allocated them, so the caller can restore persisted state once.
func (r *Registry) For(equipmentID string) (c *Counters, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.entries[equipmentID]; ok {
		return c, false
	}
	c = NewCounters()
	r.entries[equipmentID] = c
	return c, true
}

// Reset clears one equipment's counters, or all of them when equipmentID is empty.
func (r *Registry) Reset(equipmentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if equipmentID == "" {
		for _, c := range r.entries {
			c.Reset()
		}
		return
	}
	if c, ok := r.entries[equipmentID]; ok {
		c.Reset()
	}
}

func (r *Registry) Equipment() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
