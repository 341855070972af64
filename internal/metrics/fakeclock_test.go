package metrics

import (
	"sync"
	"time"
)

// fakeClock provides a controllable time source for rate-meter tests.
type fakeClock struct {
	mu  sync.Mutex
	sec int64
}

func newFakeClock() *fakeClock {
	return &fakeClock{sec: 1_700_000_000}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Unix(f.sec, 0)
}

func (f *fakeClock) Advance(seconds int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sec += seconds
}
