package runner

import (
	"math"
	"sync"
)

// memoryLimits applies the settings.max_memory values of the runs in flight.
// The process limit is the smallest of them. When the last run that set one
// finishes, the limit found before the first is restored.
type memoryLimits struct {
	set func(int64) int64

	mu     sync.Mutex
	base   int64
	active map[*Controller]int64
}

func newMemoryLimits(set func(int64) int64) *memoryLimits {
	return &memoryLimits{set: set, active: make(map[*Controller]int64)}
}

func (m *memoryLimits) apply(c *Controller, limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.active) == 0 {
		// A negative input only reads the current limit.
		m.base = m.set(-1)
	}
	m.active[c] = limit
	m.update()
}

func (m *memoryLimits) release(c *Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[c]; !ok {
		return
	}
	delete(m.active, c)
	if len(m.active) == 0 {
		m.set(m.base)
		return
	}
	m.update()
}

func (m *memoryLimits) update() {
	limit := int64(math.MaxInt64)
	for _, l := range m.active {
		limit = min(limit, l)
	}
	m.set(limit)
}
