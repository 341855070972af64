// Package metrics collects the hub's operational counters, gauges, rate
// meters and latency histograms, and builds the snapshot that
// dashboard.MetricsPusher mirrors to the shared KV store.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// quantileObjectives is the teacher corpus's established way (via the
// Prometheus ecosystem) to get percentile estimates without hand-rolling
// a quantile sketch.
var quantileObjectives = map[float64]float64{
	0.5:  0.05,
	0.9:  0.01,
	0.95: 0.005,
	0.99: 0.001,
}

// Registry holds every metric the hub exposes. It is constructed once by
// the process entrypoint and passed down by reference.
type Registry struct {
	TotalConnections    prometheus.Counter
	TotalDisconnections prometheus.Counter
	TotalErrors         prometheus.Counter
	MessagesIn          prometheus.Counter
	MessagesOut         prometheus.Counter
	LogsReceived        prometheus.Counter
	CommandsSent        prometheus.Counter
	CommandsSucceeded   prometheus.Counter
	CommandsFailed      prometheus.Counter

	ActiveConnections prometheus.Gauge

	HandlerLatency   prometheus.Summary
	DBWriteLatency   prometheus.Summary

	MessagesPerSecond *RateMeter
	LogsPerSecond     *RateMeter

	perSN     sync.Map // sn(string) -> *perSNCounters
	activeNow int64    // mirrors ActiveConnections for snapshot reads
}

type perSNCounters struct {
	messages int64
	logs     int64
	mu       sync.Mutex
}

// NewRegistry builds and registers every metric against reg (a dedicated
// prometheus.Registry owned by the process, not the global default).
func NewRegistry(reg *prometheus.Registry) *Registry {
	m := &Registry{
		TotalConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tm20_connections_total", Help: "total terminal connections accepted",
		}),
		TotalDisconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tm20_disconnections_total", Help: "total terminal disconnections",
		}),
		TotalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tm20_errors_total", Help: "total session errors",
		}),
		MessagesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tm20_messages_in_total", Help: "total inbound frames",
		}),
		MessagesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tm20_messages_out_total", Help: "total outbound frames",
		}),
		LogsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tm20_logs_received_total", Help: "total attendance records received",
		}),
		CommandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tm20_commands_sent_total", Help: "total commands enqueued to a terminal",
		}),
		CommandsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tm20_commands_succeeded_total", Help: "total commands acknowledged successfully",
		}),
		CommandsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tm20_commands_failed_total", Help: "total commands acknowledged as failed or timed out",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tm20_active_connections", Help: "currently open terminal websocket connections",
		}),
		HandlerLatency: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "tm20_handler_latency_seconds", Help: "message handler latency",
			Objectives: quantileObjectives,
		}),
		DBWriteLatency: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "tm20_db_write_latency_seconds", Help: "database write latency",
			Objectives: quantileObjectives,
		}),
		MessagesPerSecond: NewRateMeter(),
		LogsPerSecond:     NewRateMeter(),
	}

	for _, c := range []prometheus.Collector{
		m.TotalConnections, m.TotalDisconnections, m.TotalErrors, m.MessagesIn,
		m.MessagesOut, m.LogsReceived, m.CommandsSent, m.CommandsSucceeded,
		m.CommandsFailed, m.ActiveConnections, m.HandlerLatency, m.DBWriteLatency,
	} {
		reg.MustRegister(c)
	}

	return m
}

// IncActive records a newly accepted terminal websocket connection.
func (m *Registry) IncActive() {
	m.ActiveConnections.Inc()
	atomic.AddInt64(&m.activeNow, 1)
}

// DecActive records a terminal websocket connection ending.
func (m *Registry) DecActive() {
	m.ActiveConnections.Dec()
	atomic.AddInt64(&m.activeNow, -1)
}

// RecordMessage bumps the inbound-message counters for sn.
func (m *Registry) RecordMessage(sn string) {
	m.MessagesIn.Inc()
	m.MessagesPerSecond.Incr()
	m.snCounters(sn).bumpMessages()
}

// RecordLog bumps the attendance-log counters for sn.
func (m *Registry) RecordLog(sn string, count int) {
	m.LogsReceived.Add(float64(count))
	for i := 0; i < count; i++ {
		m.LogsPerSecond.Incr()
	}
	m.snCounters(sn).bumpLogs(int64(count))
}

func (m *Registry) snCounters(sn string) *perSNCounters {
	v, _ := m.perSN.LoadOrStore(sn, &perSNCounters{})
	return v.(*perSNCounters)
}

func (c *perSNCounters) bumpMessages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages++
}

func (c *perSNCounters) bumpLogs(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs += n
}

// PerSNSnapshot is one terminal's counters, for the metrics export.
type PerSNSnapshot struct {
	SN       string `json:"sn"`
	Messages int64  `json:"messages"`
	Logs     int64  `json:"logs"`
}

// PerSN returns a snapshot of all per-terminal counters.
func (m *Registry) PerSN() []PerSNSnapshot {
	var out []PerSNSnapshot
	m.perSN.Range(func(key, value any) bool {
		c := value.(*perSNCounters)
		c.mu.Lock()
		out = append(out, PerSNSnapshot{SN: key.(string), Messages: c.messages, Logs: c.logs})
		c.mu.Unlock()
		return true
	})
	return out
}

// Snapshot is the exported shape mirrored into the shared KV store.
type Snapshot struct {
	ActiveConnections float64         `json:"active_connections"`
	MessagesPerSecond float64         `json:"messages_per_second"`
	LogsPerSecond     float64         `json:"logs_per_second"`
	PerSN             []PerSNSnapshot `json:"per_sn"`
	TakenAt           time.Time       `json:"taken_at"`
}

// Snapshot builds the current export shape for a KV mirror write.
func (m *Registry) Snapshot() Snapshot {
	return Snapshot{
		ActiveConnections: float64(atomic.LoadInt64(&m.activeNow)),
		MessagesPerSecond: m.MessagesPerSecond.PerSecond(),
		LogsPerSecond:     m.LogsPerSecond.PerSecond(),
		PerSN:             m.PerSN(),
		TakenAt:           time.Now().UTC(),
	}
}
