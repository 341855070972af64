package session

import (
	"testing"
	"time"
)

func TestDetermineInoutNoPriorDefaultsToEntry(t *testing.T) {
	got := DetermineInout(false, 0, time.Time{}, time.Now(), 18*time.Hour)
	if got != 0 {
		t.Errorf("got %d, want 0 (entry)", got)
	}
}

func TestDetermineInoutFlipsFromEntry(t *testing.T) {
	now := time.Now()
	prev := now.Add(-1 * time.Hour)
	got := DetermineInout(true, 0, prev, now, 18*time.Hour)
	if got != 1 {
		t.Errorf("got %d, want 1 (exit)", got)
	}
}

func TestDetermineInoutFlipsFromExit(t *testing.T) {
	now := time.Now()
	prev := now.Add(-1 * time.Hour)
	got := DetermineInout(true, 1, prev, now, 18*time.Hour)
	if got != 0 {
		t.Errorf("got %d, want 0 (entry)", got)
	}
}

func TestDetermineInoutStalePriorResetsToEntry(t *testing.T) {
	now := time.Now()
	prev := now.Add(-24 * time.Hour)
	got := DetermineInout(true, 0, prev, now, 18*time.Hour)
	if got != 0 {
		t.Errorf("got %d, want 0 (entry, prior too old)", got)
	}
}

func TestInoutFlipAlternatesAcrossASequence(t *testing.T) {
	window := 18 * time.Hour
	now := time.Now()
	times := []time.Time{now, now.Add(1 * time.Hour), now.Add(2 * time.Hour), now.Add(3 * time.Hour)}

	hasPrior := false
	prevInout := 0
	prevAt := time.Time{}
	var sequence []int
	for _, at := range times {
		inout := DetermineInout(hasPrior, prevInout, prevAt, at, window)
		sequence = append(sequence, inout)
		hasPrior, prevInout, prevAt = true, inout, at
	}

	want := []int{0, 1, 0, 1}
	for i, w := range want {
		if sequence[i] != w {
			t.Errorf("sequence[%d] = %d, want %d (full sequence %v)", i, sequence[i], w, sequence)
		}
	}
}

func TestCheckAccessUnknownUserAllowed(t *testing.T) {
	if !CheckAccess(false, false, false, time.Time{}, false, time.Time{}, time.Now()) {
		t.Error("unknown user should be allowed")
	}
}

func TestCheckAccessDisabledUserDenied(t *testing.T) {
	if CheckAccess(true, false, false, time.Time{}, false, time.Time{}, time.Now()) {
		t.Error("disabled user should be denied")
	}
}

func TestCheckAccessOutsideWindowDenied(t *testing.T) {
	now := time.Now()
	start := now.Add(1 * time.Hour)
	if CheckAccess(true, true, true, start, false, time.Time{}, now) {
		t.Error("user before start window should be denied")
	}

	end := now.Add(-1 * time.Hour)
	if CheckAccess(true, true, false, time.Time{}, true, end, now) {
		t.Error("user after end window should be denied")
	}
}

func TestCheckAccessWithinWindowAllowed(t *testing.T) {
	now := time.Now()
	start := now.Add(-1 * time.Hour)
	end := now.Add(1 * time.Hour)
	if !CheckAccess(true, true, true, start, true, end, now) {
		t.Error("enabled user within window should be allowed")
	}
}
