// Package registry implements the process-wide sn -> Session index:
// single-owner replacement on reconnect, targeted send, broadcast, and a
// health monitor that marks stale sessions offline.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/eventbus"
	"github.com/nodebyte/tm20hub/internal/kv"
)

// Session is the subset of session behaviour the registry depends on.
// Defined here (not in internal/session) so registry has no import cycle
// on the package that owns the full session implementation.
type Session struct {
	// SN is the terminal's serial number, immutable once set.
	SN string
	// LastMessageAt is updated by the session on every inbound frame.
	LastMessageAt func() time.Time
	// Send enqueues payload on the session's mailbox without blocking
	// beyond timeout; returns false on a full mailbox or closed session.
	Send func(ctx context.Context, payload []byte, timeout time.Duration) bool
	// Close closes the underlying socket.
	Close func()
	// MarkOffline transitions the session's state machine to OFFLINE.
	MarkOffline func()
	// ErrorCount is bumped by the registry on failed sends.
	ErrorCount func(delta int)
	// InstallPendingContext records the affected row ids for a
	// server-initiated batch command, ahead of sending it, so the
	// matching ret frame can be correlated back to those rows.
	InstallPendingContext func(verb string, ids []string)
}

// PendingContext is the request/response correlation record installed
// ahead of a server-initiated batch command, keyed by verb (one session,
// one sn, so verb alone disambiguates).
type PendingContext struct {
	IDs       []string
	InstallAt time.Time
}

// ResponseCorrelator is notified when a ret frame matches a pending
// context installed by InstallPendingContext. Defined here (not in
// internal/session) so a correlator implementation outside the session
// package — commandqueue, the user sync engine — never needs to import
// session just to satisfy this interface.
type ResponseCorrelator interface {
	Correlate(ctx context.Context, sn, verb string, result bool, pending *PendingContext)
}

// Registry is the global sn -> Session map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	bus      *eventbus.Bus
	kvStore  *kv.Store
}

// New creates an empty Registry publishing lifecycle events to bus.
func New(bus *eventbus.Bus) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		bus:      bus,
	}
}

// SetKVStore attaches the shared key-value mirror. Optional — a registry
// with no store attached just never mirrors, matching the bus-less test
// construction callers already use.
func (r *Registry) SetKVStore(store *kv.Store) {
	r.kvStore = store
}

// Register installs session under sn, closing and replacing any prior
// session for the same sn. The replaced session's Close is invoked after
// the registry lock is released, matching the shared-resource policy
// that no I/O happens under the lock.
func (r *Registry) Register(sn string, session *Session) (replaced bool) {
	r.mu.Lock()
	prev := r.sessions[sn]
	r.sessions[sn] = session
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
		replaced = true
	}

	r.bus.Publish(eventbus.Event{Kind: eventbus.DeviceRegistered, Data: map[string]any{"sn": sn}})
	return replaced
}

// Unregister removes sn if it is still mapped to session — a stale
// unregister from an already-replaced session is a no-op.
func (r *Registry) Unregister(sn string, session *Session) {
	r.mu.Lock()
	current, ok := r.sessions[sn]
	if ok && current == session {
		delete(r.sessions, sn)
	}
	r.mu.Unlock()

	if ok && current == session {
		r.bus.Publish(eventbus.Event{Kind: eventbus.DeviceDisconnected, Data: map[string]any{"sn": sn}})
	}
}

// Get returns the live session for sn, or nil.
func (r *Registry) Get(sn string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sn]
}

// SNs returns the serial numbers currently registered, for the KV mirror.
func (r *Registry) SNs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for sn := range r.sessions {
		out = append(out, sn)
	}
	return out
}

// DeviceStatus is a point-in-time view of one registered session, for
// the devices snapshot endpoint.
type DeviceStatus struct {
	SN            string    `json:"sn"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Snapshot returns the current sn -> last-message-time view of every
// registered session.
func (r *Registry) Snapshot() []DeviceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceStatus, 0, len(r.sessions))
	for sn, s := range r.sessions {
		out = append(out, DeviceStatus{SN: sn, LastMessageAt: s.LastMessageAt()})
	}
	return out
}

// SendToDevice enqueues payload on sn's mailbox under timeout, returning
// false on missing session, full mailbox, or timeout.
func (r *Registry) SendToDevice(ctx context.Context, sn string, payload []byte, timeout time.Duration) bool {
	session := r.Get(sn)
	if session == nil {
		return false
	}

	ok := session.Send(ctx, payload, timeout)
	if !ok {
		session.ErrorCount(1)
		return false
	}

	r.bus.Publish(eventbus.Event{Kind: eventbus.CommandSent, Data: map[string]any{"sn": sn}})
	return true
}

// Broadcast fans payload out to every session matching filter (nil
// matches all), with independent per-session delivery — one slow
// terminal must not block the others.
func (r *Registry) Broadcast(ctx context.Context, payload []byte, timeout time.Duration, filter func(sn string) bool) map[string]bool {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for sn, s := range r.sessions {
		if filter == nil || filter(sn) {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	results := make(map[string]bool, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			ok := s.Send(ctx, payload, timeout)
			if !ok {
				s.ErrorCount(1)
			}
			mu.Lock()
			results[s.SN] = ok
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	return results
}

// StartHealthMonitor runs a background ticker marking sessions OFFLINE
// once LastMessageAt is older than connectionTimeout. It never closes
// sockets directly — that remains the writer's responsibility.
func (r *Registry) StartHealthMonitor(ctx context.Context, heartbeatInterval, connectionTimeout time.Duration) {
	ticker := time.NewTicker(heartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(connectionTimeout)
				r.mirrorKV(ctx)
			}
		}
	}()
}

// mirrorKV publishes the current live SN set to the shared key-value
// store, so peer processes can answer "is this SN connected?" without
// in-process access to the registry.
func (r *Registry) mirrorKV(ctx context.Context) {
	if r.kvStore == nil {
		return
	}
	if err := r.kvStore.SetConnectedDevices(ctx, r.SNs()); err != nil {
		log.Warn().Err(err).Msg("registry: kv mirror write failed")
	}
}

func (r *Registry) sweep(connectionTimeout time.Duration) {
	r.mu.RLock()
	snapshot := make(map[string]*Session, len(r.sessions))
	for sn, s := range r.sessions {
		snapshot[sn] = s
	}
	r.mu.RUnlock()

	now := time.Now()
	for sn, s := range snapshot {
		if now.Sub(s.LastMessageAt()) > connectionTimeout {
			s.MarkOffline()
			log.Warn().Str("sn", sn).Msg("registry: terminal timed out, marking offline")
			r.bus.Publish(eventbus.Event{Kind: eventbus.DeviceTimeout, Data: map[string]any{"sn": sn}})
		}
	}
}
