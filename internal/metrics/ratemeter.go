package metrics

import (
	"sync"
	"time"
)

// RateMeter is a sliding 60-second window rate counter built from
// per-second buckets. No ecosystem library in the teacher corpus offers
// an in-process sliding-window rate primitive simpler than this, so it
// is implemented directly on time/sync rather than pulled from a
// third-party package.
type RateMeter struct {
	mu      sync.Mutex
	buckets [windowSeconds]int64
	lastSec int64
	now     func() time.Time
}

const windowSeconds = 60

// NewRateMeter creates a RateMeter tracking the last 60 one-second buckets.
func NewRateMeter() *RateMeter {
	return &RateMeter{now: time.Now}
}

// Incr records one occurrence at the current time.
func (m *RateMeter) Incr() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotate()
	idx := m.lastSec % windowSeconds
	m.buckets[idx]++
}

// PerSecond returns the average rate over the trailing 60-second window.
func (m *RateMeter) PerSecond() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotate()

	var total int64
	for _, v := range m.buckets {
		total += v
	}
	return float64(total) / float64(windowSeconds)
}

// rotate clears buckets that have aged out of the window since the last
// call. Must be called with m.mu held.
func (m *RateMeter) rotate() {
	sec := m.now().Unix()
	if m.lastSec == 0 {
		m.lastSec = sec
		return
	}
	if sec == m.lastSec {
		return
	}

	delta := sec - m.lastSec
	if delta > windowSeconds {
		delta = windowSeconds
	}
	for i := int64(1); i <= delta; i++ {
		idx := (m.lastSec + i) % windowSeconds
		m.buckets[idx] = 0
	}
	m.lastSec = sec
}
