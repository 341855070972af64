package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nodebyte/tm20hub/internal/protocol"
)

type fakeSocket struct {
	mu      sync.Mutex
	written [][]byte
	reads   chan []byte
	closed  bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{reads: make(chan []byte, 8)}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	data, ok := <-f.reads
	if !ok {
		return 0, nil, errors.New("fake socket closed")
	}
	return 1, data, nil
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.reads)
	}
	return nil
}

func (f *fakeSocket) writtenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func TestSessionStartsConnecting(t *testing.T) {
	s := New(newFakeSocket(), time.Minute, time.Second, nil, nil, nil)
	if s.State() != StateConnecting {
		t.Errorf("initial state = %v, want StateConnecting", s.State())
	}
}

func TestSessionSendDeliversThroughMailbox(t *testing.T) {
	sock := newFakeSocket()
	s := New(sock, time.Minute, time.Second, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunWriter(ctx)

	if !s.Send(ctx, []byte(`{"cmd":"gettime"}`), time.Second) {
		t.Fatal("expected send to succeed")
	}

	deadline := time.After(time.Second)
	for sock.writtenCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for write")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSessionSendFailsAfterClose(t *testing.T) {
	s := New(newFakeSocket(), time.Minute, time.Second, nil, nil, nil)
	s.Close()

	if s.Send(context.Background(), []byte("x"), time.Second) {
		t.Error("expected send to fail on a closed session")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s := New(newFakeSocket(), time.Minute, time.Second, nil, nil, nil)
	s.Close()
	s.Close() // must not panic on double-close
	if s.State() != StateClosed {
		t.Errorf("state = %v, want StateClosed", s.State())
	}
}

func TestPendingContextRoundTrip(t *testing.T) {
	s := New(newFakeSocket(), time.Minute, time.Minute, nil, nil, nil)
	s.InstallPendingContext("setusername", []string{"user-1", "user-2"})

	pc, ok := s.TakePendingContext("setusername")
	if !ok {
		t.Fatal("expected pending context to be present")
	}
	if len(pc.IDs) != 2 {
		t.Errorf("got %d user ids, want 2", len(pc.IDs))
	}

	if _, ok := s.TakePendingContext("setusername"); ok {
		t.Error("expected pending context to be consumed on first take")
	}
}

func TestPendingContextExpiresAfterTimeout(t *testing.T) {
	s := New(newFakeSocket(), time.Minute, 10*time.Millisecond, nil, nil, nil)
	s.InstallPendingContext("setusername", []string{"user-1"})

	time.Sleep(20 * time.Millisecond)

	if _, ok := s.TakePendingContext("setusername"); ok {
		t.Error("expected pending context to have expired")
	}
}

type fakeCorrelator struct {
	mu     sync.Mutex
	calls  int
	result bool
}

func (f *fakeCorrelator) Correlate(_ context.Context, sn, verb string, result bool, pending *PendingContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.result = result
}

func TestHandleResponseCorrelatesPendingContext(t *testing.T) {
	s := New(newFakeSocket(), time.Minute, time.Minute, nil, nil, nil)
	corr := &fakeCorrelator{}
	s.SetResponseCorrelator(corr)
	s.InstallPendingContext("setusername", []string{"user-1"})

	msg := &protocol.Message{
		Kind: protocol.KindResponse,
		Verb: "setusername",
		Response: &protocol.ResponseMessage{Verb: "setusername", Result: true},
	}
	s.handleResponse(msg)

	corr.mu.Lock()
	defer corr.mu.Unlock()
	if corr.calls != 1 {
		t.Fatalf("expected 1 correlate call, got %d", corr.calls)
	}
	if !corr.result {
		t.Error("expected result=true to propagate")
	}
}
