package registry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nodebyte/tm20hub/internal/eventbus"
)

func newFakeSession(sn string) (*Session, *int32, *int32) {
	var closed int32
	var errCount int32
	lastMsg := time.Now()
	return &Session{
		SN:            sn,
		LastMessageAt: func() time.Time { return lastMsg },
		Send: func(ctx context.Context, payload []byte, timeout time.Duration) bool {
			return true
		},
		Close:       func() { atomic.StoreInt32(&closed, 1) },
		MarkOffline: func() {},
		ErrorCount:  func(delta int) { atomic.AddInt32(&errCount, int32(delta)) },
	}, &closed, &errCount
}

func TestAtMostOneSessionPerSN(t *testing.T) {
	bus := eventbus.New()
	r := New(bus)

	s1, s1Closed, _ := newFakeSession("TM20-001")
	s2, _, _ := newFakeSession("TM20-001")

	r.Register("TM20-001", s1)
	r.Register("TM20-001", s2)

	if r.Get("TM20-001") != s2 {
		t.Fatal("expected registry to hold the replacing session")
	}
	if atomic.LoadInt32(s1Closed) != 1 {
		t.Fatal("expected the replaced session to be closed")
	}
}

func TestUnregisterStaleSessionIsNoop(t *testing.T) {
	bus := eventbus.New()
	r := New(bus)

	s1, _, _ := newFakeSession("TM20-001")
	s2, _, _ := newFakeSession("TM20-001")

	r.Register("TM20-001", s1)
	r.Register("TM20-001", s2)

	r.Unregister("TM20-001", s1) // stale: s2 is current
	if r.Get("TM20-001") != s2 {
		t.Fatal("stale unregister should not remove the current session")
	}
}

func TestSendToDeviceMissingSession(t *testing.T) {
	bus := eventbus.New()
	r := New(bus)

	if r.SendToDevice(context.Background(), "TM20-999", []byte("{}"), time.Second) {
		t.Fatal("expected false for missing session")
	}
}

func TestSendToDeviceFullMailboxIncrementsErrorCount(t *testing.T) {
	bus := eventbus.New()
	r := New(bus)

	s, _, errCount := newFakeSession("TM20-001")
	s.Send = func(ctx context.Context, payload []byte, timeout time.Duration) bool { return false }
	r.Register("TM20-001", s)

	ok := r.SendToDevice(context.Background(), "TM20-001", []byte("{}"), time.Second)
	if ok {
		t.Fatal("expected false when send fails")
	}
	if atomic.LoadInt32(errCount) != 1 {
		t.Fatalf("expected error count 1, got %d", atomic.LoadInt32(errCount))
	}
}

func TestBroadcastIndependentDelivery(t *testing.T) {
	bus := eventbus.New()
	r := New(bus)

	s1, _, _ := newFakeSession("TM20-001")
	s2, _, _ := newFakeSession("TM20-002")
	s2.Send = func(ctx context.Context, payload []byte, timeout time.Duration) bool { return false }

	r.Register("TM20-001", s1)
	r.Register("TM20-002", s2)

	results := r.Broadcast(context.Background(), []byte("{}"), time.Second, nil)
	if !results["TM20-001"] {
		t.Error("expected TM20-001 delivery to succeed")
	}
	if results["TM20-002"] {
		t.Error("expected TM20-002 delivery to fail independently")
	}
}

func TestHealthMonitorMarksStaleSessionsOffline(t *testing.T) {
	bus := eventbus.New()
	r := New(bus)

	var offlineMarked int32
	s := &Session{
		SN:            "TM20-001",
		LastMessageAt: func() time.Time { return time.Now().Add(-time.Hour) },
		Send:          func(ctx context.Context, payload []byte, timeout time.Duration) bool { return true },
		Close:         func() {},
		MarkOffline:   func() { atomic.StoreInt32(&offlineMarked, 1) },
		ErrorCount:    func(delta int) {},
	}
	r.Register("TM20-001", s)

	r.sweep(time.Minute)

	if atomic.LoadInt32(&offlineMarked) != 1 {
		t.Fatal("expected stale session to be marked offline")
	}
}
