// Package eventbus implements a typed in-process publish/subscribe bus
// for terminal lifecycle and traffic events, consumed by the dashboard
// push handler and metrics.
package eventbus

import "sync"

// Kind identifies the category of an Event.
type Kind string

const (
	DeviceConnected     Kind = "DEVICE_CONNECTED"
	DeviceRegistered    Kind = "DEVICE_REGISTERED"
	DeviceDisconnected  Kind = "DEVICE_DISCONNECTED"
	DeviceTimeout       Kind = "DEVICE_TIMEOUT"
	AttendanceReceived  Kind = "ATTENDANCE_LOG_RECEIVED"
	AttendanceBatch     Kind = "ATTENDANCE_LOG_BATCH"
	UserSynced          Kind = "USER_SYNCED"
	UserCreated         Kind = "USER_CREATED"
	UserDeleted         Kind = "USER_DELETED"
	CommandSent         Kind = "COMMAND_SENT"
	CommandResponse     Kind = "COMMAND_RESPONSE"
	CommandTimeout      Kind = "COMMAND_TIMEOUT"
	ServerStarted       Kind = "SERVER_STARTED"
	ServerStopped       Kind = "SERVER_STOPPED"
	MetricsUpdate       Kind = "METRICS_UPDATE"
	ErrorOccurred       Kind = "ERROR_OCCURRED"
)

// Event is one published occurrence. Data carries kind-specific fields
// (e.g. {sn, count, latency_ms} for ATTENDANCE_LOG_BATCH).
type Event struct {
	Kind Kind
	Data map[string]any
}

const (
	subscriberQueueCapacity = 256
	ringBufferSize          = 1000
)

// Bus is a typed pub/sub with bounded per-subscriber delivery and a
// ring buffer for late joiners.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*subscription]struct{}
	ring        []Event
	ringPos     int
	ringFilled  bool
}

type subscription struct {
	ch      chan Event
	kinds   map[Kind]bool // nil means "all kinds"
	dropped uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[*subscription]struct{}),
		ring:        make([]Event, ringBufferSize),
	}
}

// Subscription is an opaque handle returned by Subscribe, used to
// receive events and to Unsubscribe.
type Subscription struct {
	bus *Bus
	sub *subscription
}

// Events returns the channel events are delivered on.
func (s *Subscription) Events() <-chan Event { return s.sub.ch }

// Dropped returns how many events were dropped for this subscriber due
// to a full queue.
func (s *Subscription) Dropped() uint64 { return s.sub.dropped }

// Unsubscribe removes the subscription from the bus.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subscribers, s.sub)
	close(s.sub.ch)
}

// Subscribe registers a new subscriber. kinds is optional — an empty
// list subscribes to all kinds.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	var filter map[Kind]bool
	if len(kinds) > 0 {
		filter = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			filter[k] = true
		}
	}

	sub := &subscription{
		ch:    make(chan Event, subscriberQueueCapacity),
		kinds: filter,
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	return &Subscription{bus: b, sub: sub}
}

// Publish delivers an event to all matching subscribers asynchronously.
// A subscriber whose queue is full has its oldest queued event dropped
// to make room — publishers never block on a slow subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	b.ring[b.ringPos] = ev
	b.ringPos = (b.ringPos + 1) % len(b.ring)
	if b.ringPos == 0 {
		b.ringFilled = true
	}

	subs := make([]*subscription, 0, len(b.subscribers))
	for s := range b.subscribers {
		if s.kinds == nil || s.kinds[ev.Kind] {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			// queue full: drop the oldest entry to make room, then retry once
			select {
			case <-s.ch:
				s.dropped++
			default:
			}
			select {
			case s.ch <- ev:
			default:
				s.dropped++
			}
		}
	}
}

// Snapshot returns up to the last 1,000 events published, oldest first,
// for a late-joining dashboard client.
func (b *Bus) Snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ringFilled {
		out := make([]Event, b.ringPos)
		copy(out, b.ring[:b.ringPos])
		return out
	}

	out := make([]Event, len(b.ring))
	copy(out, b.ring[b.ringPos:])
	copy(out[len(b.ring)-b.ringPos:], b.ring[:b.ringPos])
	return out
}
