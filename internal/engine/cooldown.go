package engine

import (
	"strings"
	"sync"
	"time"
)

// Cooldown suppresses repeated alerts on the same equipment|culprit key.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time), now: time.Now}
}

func cooldownKey(equipmentID, culprit string) string {
	return equipmentID + "|" + culprit
}

func (c *Cooldown) Allow(equipmentID, culprit string, cooldown time.Duration) bool {
	return c.AllowKey(cooldownKey(equipmentID, culprit), cooldown)
}

func (c *Cooldown) AllowKey(key string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[key]; ok {
		if now.Sub(ts) < cooldown {
			return false
		}
	}
	c.last[key] = now
	return true
}

// Reset forgets one equipment's keys, or all keys when equipmentID is empty.
func (c *Cooldown) Reset(equipmentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if equipmentID == "" {
		c.last = make(map[string]time.Time)
		return
	}
	prefix := equipmentID + "|"
	for k := range c.last {
		if strings.HasPrefix(k, prefix) {
			delete(c.last, k)
		}
	}
}
