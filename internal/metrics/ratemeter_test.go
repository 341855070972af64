package metrics

import "testing"

func TestRateMeterAccumulatesWithinWindow(t *testing.T) {
	m := NewRateMeter()
	fake := newFakeClock()
	m.now = fake.Now

	for i := 0; i < 10; i++ {
		m.Incr()
	}

	rate := m.PerSecond()
	if rate <= 0 {
		t.Errorf("expected positive rate, got %v", rate)
	}
}

func TestRateMeterAgesOutOldBuckets(t *testing.T) {
	m := NewRateMeter()
	fake := newFakeClock()
	m.now = fake.Now

	for i := 0; i < 100; i++ {
		m.Incr()
	}

	fake.Advance(windowSeconds + 5)
	m.Incr()

	rate := m.PerSecond()
	want := 1.0 / float64(windowSeconds)
	if rate > want+0.001 {
		t.Errorf("expected old buckets to have aged out, rate = %v", rate)
	}
}
