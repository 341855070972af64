// Package queue wires the durable task types the sync engines enqueue
// onto asynq: attendance drain/retry batches (one task per third-party
// config), user pulls (per terminal/config mapping), user pushes (per
// terminal), and the dead-letter cleanup sweep.
package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task types.
const (
	TypeAttendanceDrain = "attendance:drain"
	TypeAttendanceRetry = "attendance:retry"
	TypeUserPull        = "user:pull"
	TypeUserPush        = "user:push"
	TypeCleanupFailed   = "cleanup:failed_attendance"
)

// Queue names, by priority.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Manager enqueues sync-engine tasks onto asynq.
type Manager struct {
	client *asynq.Client
}

// NewManager creates a new queue manager.
func NewManager(client *asynq.Client) *Manager {
	return &Manager{client: client}
}

// Client returns the underlying asynq client for direct enqueueing.
func (m *Manager) Client() *asynq.Client {
	return m.client
}

// AttendanceDrainPayload drives one drain pass of pending attendance
// logs for a single third-party config.
type AttendanceDrainPayload struct {
	ConfigID string `json:"config_id"`
}

// AttendanceRetryPayload drives one retry pass over failed-attempt rows
// whose backoff window has elapsed, for a single config.
type AttendanceRetryPayload struct {
	ConfigID string `json:"config_id"`
}

// UserPullPayload drives one pull+upsert pass from a third-party
// back-office for a single terminal/config mapping.
type UserPullPayload struct {
	ConfigID   string `json:"config_id"`
	TerminalID string `json:"terminal_id"`
}

// UserPushPayload drives one push of pending_sync users to a terminal's
// device over its live session.
type UserPushPayload struct {
	TerminalID string `json:"terminal_id"`
}

// EnqueueAttendanceDrain enqueues one drain pass, deduplicated per
// config within the drain interval so overlapping ticks collapse.
func (m *Manager) EnqueueAttendanceDrain(payload AttendanceDrainPayload, uniqueFor time.Duration) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(TypeAttendanceDrain, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(1), // retry semantics live in the row's sync_attempts, not the task queue
		asynq.Timeout(2*time.Minute),
		asynq.Unique(uniqueFor),
	)
	return m.client.Enqueue(task)
}

// EnqueueAttendanceRetry enqueues one retry pass for config.
func (m *Manager) EnqueueAttendanceRetry(payload AttendanceRetryPayload, uniqueFor time.Duration) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(TypeAttendanceRetry, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
		asynq.Unique(uniqueFor),
	)
	return m.client.Enqueue(task)
}

// EnqueueUserPull enqueues one pull+upsert pass for a terminal/config mapping.
func (m *Manager) EnqueueUserPull(payload UserPullPayload) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(TypeUserPull, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	)
	return m.client.Enqueue(task)
}

// EnqueueUserPush enqueues one push of pending users to a terminal.
func (m *Manager) EnqueueUserPush(payload UserPushPayload) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(TypeUserPush, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	)
	return m.client.Enqueue(task)
}

// EnqueueCleanupFailed enqueues the dead-letter retention sweep.
func (m *Manager) EnqueueCleanupFailed(retentionDays int) (*asynq.TaskInfo, error) {
	data, _ := json.Marshal(map[string]int{"retention_days": retentionDays})
	task := asynq.NewTask(TypeCleanupFailed, data,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
	)
	return m.client.Enqueue(task)
}
