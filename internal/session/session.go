// Package session owns one terminal's WebSocket connection: the socket,
// the state machine, the outbound mailbox, heartbeat/timeout, and
// request/response correlation for server-initiated batch commands.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/eventbus"
	"github.com/nodebyte/tm20hub/internal/metrics"
	"github.com/nodebyte/tm20hub/internal/protocol"
	"github.com/nodebyte/tm20hub/internal/registry"
	"github.com/nodebyte/tm20hub/internal/sentry"
)

// State is the session lifecycle state machine.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateRegistered
	StateOnline
	StateOffline
	StateClosed
)

const mailboxCapacity = 64

// Socket is the minimal transport the session writes to and reads from,
// satisfied by a gofiber/contrib/websocket connection wrapper.
type Socket interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// MessageHandler handles one inbound command verb. Dispatch uses a
// verb -> handler map built by BuildHandlers and passed to New.
type MessageHandler interface {
	Handle(ctx context.Context, s *Session, msg *protocol.Message) error
}

// PendingContext and ResponseCorrelator live in internal/registry so that
// a correlator implementation outside this package (commandqueue, the
// user sync engine) never has to import session to satisfy the
// interface. Aliased here so existing call sites keep reading session.X.
type PendingContext = registry.PendingContext
type ResponseCorrelator = registry.ResponseCorrelator

// Session owns one terminal's socket, dispatch loop, heartbeat and
// pending-response map.
type Session struct {
	sn      atomic.Value // string
	socket  Socket
	state   atomic.Int32
	mailbox chan []byte

	lastMessageAt atomic.Value // time.Time
	messageCount  atomic.Int64
	errorCount    atomic.Int64

	handlers map[string]MessageHandler

	pendingMu sync.Mutex
	pending   map[string]*PendingContext // key: verb (one session, one sn, so verb alone disambiguates)

	heartbeatInterval time.Duration
	connectionTimeout time.Duration

	bus     *eventbus.Bus
	metrics *metrics.Registry

	correlator ResponseCorrelator

	closeOnce sync.Once
	closed    chan struct{}
}

// SetResponseCorrelator wires the correlator used by handleResponse.
// Optional — a session with no correlator still publishes the
// COMMAND_RESPONSE event.
func (s *Session) SetResponseCorrelator(c ResponseCorrelator) {
	s.correlator = c
}

// New constructs a Session around socket, wiring the four inbound
// handlers by verb.
func New(socket Socket, heartbeatInterval, connectionTimeout time.Duration, bus *eventbus.Bus, reg *metrics.Registry, handlers map[string]MessageHandler) *Session {
	s := &Session{
		socket:            socket,
		mailbox:           make(chan []byte, mailboxCapacity),
		handlers:          handlers,
		pending:           make(map[string]*PendingContext),
		heartbeatInterval: heartbeatInterval,
		connectionTimeout: connectionTimeout,
		bus:               bus,
		metrics:           reg,
		closed:            make(chan struct{}),
	}
	s.sn.Store("")
	s.state.Store(int32(StateConnecting))
	s.lastMessageAt.Store(time.Now())
	return s
}

// SN returns the resolved serial number, empty until registration completes.
func (s *Session) SN() string {
	return s.sn.Load().(string)
}

func (s *Session) setSN(sn string) { s.sn.Store(sn) }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// LastMessageAt returns when the last inbound frame was processed.
func (s *Session) LastMessageAt() time.Time { return s.lastMessageAt.Load().(time.Time) }

// MarkOffline transitions the session to OFFLINE. Called only by the
// registry's health monitor; it never closes the socket.
func (s *Session) MarkOffline() {
	s.setState(StateOffline)
}

// IncrementErrorCount bumps the failure counter, called by the registry
// after a failed send.
func (s *Session) IncrementErrorCount(delta int) {
	s.errorCount.Add(int64(delta))
}

// Send enqueues payload on the mailbox under timeout; returns false on a
// full mailbox, timeout, or closed session — it never blocks past timeout.
func (s *Session) Send(ctx context.Context, payload []byte, timeout time.Duration) bool {
	select {
	case <-s.closed:
		return false
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case s.mailbox <- payload:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	case <-s.closed:
		return false
	}
}

// Close closes the socket and the mailbox writer loop exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.closed)
		s.socket.Close()
	})
}

// InstallPendingContext records the affected row IDs for a batch
// command under (sn, verb), with a TTL equal to connection_timeout.
// Must be called before the command is enqueued on the mailbox.
func (s *Session) InstallPendingContext(verb string, ids []string) {
	s.pendingMu.Lock()
	s.pending[verb] = &PendingContext{IDs: ids, InstallAt: time.Now()}
	s.pendingMu.Unlock()
}

// TakePendingContext removes and returns the pending context for verb,
// if present and not expired. The caller distinguishes "absent" (nil,
// false) from "present" for correlating a ret frame.
func (s *Session) TakePendingContext(verb string) (*PendingContext, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	ctx, ok := s.pending[verb]
	if !ok {
		return nil, false
	}
	delete(s.pending, verb)

	if time.Since(ctx.InstallAt) > s.connectionTimeout {
		return nil, false
	}
	return ctx, true
}

// RunHeartbeat closes the socket once now - LastMessageAt exceeds
// connectionTimeout, checking every heartbeatInterval. The registry's
// health monitor only marks the session OFFLINE in its own index;
// actually closing the socket, and freeing the reader/writer goroutines
// behind it, is this loop's job.
func (s *Session) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-ticker.C:
			if time.Since(s.LastMessageAt()) > s.connectionTimeout {
				log.Warn().Str("sn", s.SN()).Msg("session: heartbeat timeout, closing")
				if s.bus != nil {
					s.bus.Publish(eventbus.Event{Kind: eventbus.DeviceTimeout, Data: map[string]any{"sn": s.SN()}})
				}
				s.Close()
				return
			}
		}
	}
}

// RunReader reads frames until the socket closes or the session is
// closed, parsing, validating and dispatching each one. One reader
// goroutine per session, matching the one-goroutine-per-concern model.
func (s *Session) RunReader(ctx context.Context) {
	for {
		_, data, err := s.socket.ReadMessage()
		if err != nil {
			log.Debug().Str("sn", s.SN()).Err(err).Msg("session: reader exiting")
			s.Close()
			return
		}

		s.lastMessageAt.Store(time.Now())
		s.messageCount.Add(1)
		if s.metrics != nil {
			s.metrics.RecordMessage(s.SN())
		}

		msg, err := protocol.ParseFrame(data)
		if err != nil {
			log.Warn().Str("sn", s.SN()).Err(err).Msg("session: dropping malformed frame")
			continue
		}

		if err := protocol.Validate(msg); err != nil {
			log.Warn().Str("sn", s.SN()).Err(err).Msg("session: dropping invalid frame")
			continue
		}

		s.dispatch(ctx, msg)
	}
}

func (s *Session) dispatch(ctx context.Context, msg *protocol.Message) {
	if msg.Kind == protocol.KindResponse {
		s.handleResponse(msg)
		return
	}

	handler, ok := s.handlers[msg.Verb]
	if !ok {
		log.Warn().Str("sn", s.SN()).Str("verb", msg.Verb).Msg("session: no handler for verb")
		return
	}

	start := time.Now()
	if err := handler.Handle(ctx, s, msg); err != nil {
		log.Error().Str("sn", s.SN()).Str("verb", msg.Verb).Err(err).Msg("session: handler error")
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Kind: eventbus.ErrorOccurred, Data: map[string]any{"sn": s.SN(), "verb": msg.Verb, "error": err.Error()}})
		}
	}
	if s.metrics != nil {
		s.metrics.HandlerLatency.Observe(time.Since(start).Seconds())
	}
}

// handleResponse correlates an inbound ret frame against the pending
// context registered for its verb. Mismatched or expired contexts are
// logged and dropped — an internal invariant, not a protocol error.
func (s *Session) handleResponse(msg *protocol.Message) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Kind: eventbus.CommandResponse, Data: map[string]any{"sn": s.SN(), "verb": msg.Verb, "result": msg.Response.Result}})
	}

	if s.correlator == nil {
		return
	}
	pending, ok := s.TakePendingContext(msg.Verb)
	if !ok {
		// A ret arrived with no matching pending context: either it
		// already fired once, or the TTL expired before the device
		// replied. Not a protocol error — the device did nothing wrong —
		// but the command's outcome can no longer be attributed to its
		// row. setusername is the batch case most likely to desync rows
		// silently, so it gets a sentry capture in addition to the log.
		log.Warn().Str("sn", s.SN()).Str("verb", msg.Verb).Msg("session: ret with no matching pending context")
		if msg.Verb == protocol.CmdSetUserName {
			sentry.CaptureExceptionWithContext(context.Background(), fmt.Errorf("session: ret for verb %q with no pending context (sn=%s)", msg.Verb, s.SN()), "pending_context_mismatch")
		}
		return
	}
	s.correlator.Correlate(context.Background(), s.SN(), msg.Verb, msg.Response.Result, pending)
}

// RunWriter drains the mailbox and writes frames to the socket until the
// session closes, with a grace period to flush remaining entries.
func (s *Session) RunWriter(ctx context.Context) {
	const drainGrace = 5 * time.Second

	for {
		select {
		case payload := <-s.mailbox:
			if err := s.socket.WriteMessage(1, payload); err != nil {
				log.Debug().Str("sn", s.SN()).Err(err).Msg("session: write failed, closing")
				s.Close()
			} else if s.metrics != nil {
				s.metrics.MessagesOut.Inc()
			}
		case <-s.closed:
			deadline := time.After(drainGrace)
			for {
				select {
				case payload := <-s.mailbox:
					_ = s.socket.WriteMessage(1, payload)
				case <-deadline:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
