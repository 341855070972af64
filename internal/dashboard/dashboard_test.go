package dashboard

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nodebyte/tm20hub/internal/eventbus"
)

type fakeSocket struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
	failAt  int // fail on the Nth write, 0 = never fail
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt != 0 && len(f.written)+1 == f.failAt {
		return errors.New("write failed")
	}
	f.written = append(f.written, data)
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func TestHandleReplaysSnapshotThenLiveEvents(t *testing.T) {
	bus := eventbus.New()
	bus.Publish(eventbus.Event{Kind: eventbus.DeviceConnected, Data: map[string]any{"sn": "TM20-001"}})

	sock := &fakeSocket{failAt: 2} // snapshot write (1) succeeds, first live write (2) fails

	done := make(chan struct{})
	go func() {
		Handle(sock, bus)
		close(done)
	}()

	// give the subscription time to register before publishing the live event
	time.Sleep(20 * time.Millisecond)
	bus.Publish(eventbus.Event{Kind: eventbus.DeviceRegistered, Data: map[string]any{"sn": "TM20-001"}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle did not return after write failure")
	}

	if sock.count() != 1 {
		t.Errorf("got %d writes, want 1 (snapshot only, live write failed)", sock.count())
	}
}

func TestHandleClosesSocketOnReturn(t *testing.T) {
	bus := eventbus.New()
	sock := &fakeSocket{failAt: 1}

	done := make(chan struct{})
	go func() {
		Handle(sock, bus)
		close(done)
	}()
	bus.Publish(eventbus.Event{Kind: eventbus.ServerStarted})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle did not return")
	}

	sock.mu.Lock()
	defer sock.mu.Unlock()
	if !sock.closed {
		t.Error("expected socket to be closed")
	}
}
