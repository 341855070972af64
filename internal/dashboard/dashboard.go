// Package dashboard pushes Event Bus traffic to connected dashboard
// WebSocket clients: a ring-buffer snapshot replay on connect, then one
// goroutine per subscriber forwarding live events.
package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/eventbus"
	"github.com/nodebyte/tm20hub/internal/kv"
)

// Socket is the minimal transport a dashboard connection writes to.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// wireEvent is the JSON shape pushed to dashboard clients.
type wireEvent struct {
	Kind string         `json:"kind"`
	Data map[string]any `json:"data"`
}

// Handle replays the bus's ring buffer to sock, then forwards every
// subsequent event until the bus subscription closes or a write fails.
// Meant to run as the body of the /ws/dashboard connection handler, one
// call per connected client.
func Handle(sock Socket, bus *eventbus.Bus) {
	defer sock.Close()

	for _, ev := range bus.Snapshot() {
		if !write(sock, ev) {
			return
		}
	}

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	for ev := range sub.Events() {
		if !write(sock, ev) {
			return
		}
	}
}

func write(sock Socket, ev eventbus.Event) bool {
	payload, err := json.Marshal(wireEvent{Kind: string(ev.Kind), Data: ev.Data})
	if err != nil {
		log.Error().Err(err).Msg("dashboard: failed to marshal event")
		return true
	}
	if err := sock.WriteMessage(1, payload); err != nil {
		log.Debug().Err(err).Msg("dashboard: client disconnected")
		return false
	}
	return true
}

// MetricsPusher periodically mirrors a metrics snapshot into the bus as
// a METRICS_UPDATE event, so dashboard clients see live counters without
// polling a separate endpoint, and into kvStore (when attached) so peer
// processes can read the same snapshot without in-process access.
func MetricsPusher(bus *eventbus.Bus, kvStore *kv.Store, snapshot func() any, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			data, err := structToMap(snapshot())
			if err != nil {
				continue
			}
			bus.Publish(eventbus.Event{Kind: eventbus.MetricsUpdate, Data: data})
			if kvStore != nil {
				if err := kvStore.SetMetricsSnapshot(context.Background(), data); err != nil {
					log.Warn().Err(err).Msg("dashboard: kv metrics mirror failed")
				}
			}
		}
	}
}

func structToMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
