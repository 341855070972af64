// Package syncengine drains attendance to, and pulls/pushes users from,
// the third-party back-offices configured per terminal. Both engines own
// their timing internally via goroutine+ticker rather than a generic
// cron subsystem, and do their actual network I/O inside asynq task
// handlers so a slow back-office never blocks the ticker loop.
package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/crypto"
	"github.com/nodebyte/tm20hub/internal/database"
	"github.com/nodebyte/tm20hub/internal/eventbus"
	"github.com/nodebyte/tm20hub/internal/queue"
	"github.com/nodebyte/tm20hub/internal/sentry"
	"github.com/nodebyte/tm20hub/internal/thirdparty"
)

// backoffMinutes is the retry schedule keyed by sync_attempts (1-indexed):
// attempt 1 waits 1 minute, attempt 5 waits 4 hours.
var backoffMinutes = []int{1, 5, 15, 60, 240}

// AttendanceEngineConfig is the tunable subset of the hub configuration
// the attendance engine needs.
type AttendanceEngineConfig struct {
	MaxRetry            int
	BatchSize           int
	DrainInterval       time.Duration
	RetryInterval       time.Duration
	DeadLetterRetention time.Duration
}

// AttendanceEngine drains pending AttendanceLog rows to each active
// ThirdPartyConfig, retries failed-attempt rows once their backoff
// window elapses, and prunes dead-lettered rows past the retention
// window.
type AttendanceEngine struct {
	configs    *database.ThirdPartyRepository
	attendance *database.AttendanceRepository
	terminals  *database.TerminalRepository
	encryptor  *crypto.Encryptor
	queue      *queue.Manager
	bus        *eventbus.Bus
	cfg        AttendanceEngineConfig
}

// NewAttendanceEngine builds an engine; encryptor may be nil, matching
// the teacher's unencrypted-with-a-warning fallback.
func NewAttendanceEngine(configs *database.ThirdPartyRepository, attendance *database.AttendanceRepository, terminals *database.TerminalRepository, encryptor *crypto.Encryptor, q *queue.Manager, bus *eventbus.Bus, cfg AttendanceEngineConfig) *AttendanceEngine {
	return &AttendanceEngine{configs: configs, attendance: attendance, terminals: terminals, encryptor: encryptor, queue: q, bus: bus, cfg: cfg}
}

// Start launches the engine's own ticker loops: a drain tick enqueues
// one drain task per active config, a retry tick enqueues one retry
// task per config, and a daily tick enqueues the dead-letter sweep.
func (e *AttendanceEngine) Start(ctx context.Context) {
	drainTicker := time.NewTicker(e.cfg.DrainInterval)
	retryTicker := time.NewTicker(e.cfg.RetryInterval)
	cleanupTicker := time.NewTicker(24 * time.Hour)

	go func() {
		defer drainTicker.Stop()
		defer retryTicker.Stop()
		defer cleanupTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-drainTicker.C:
				e.enqueueDrainForActiveConfigs(ctx)
			case <-retryTicker.C:
				e.enqueueRetryForActiveConfigs(ctx)
			case <-cleanupTicker.C:
				days := int(e.cfg.DeadLetterRetention.Hours() / 24)
				if _, err := e.queue.EnqueueCleanupFailed(days); err != nil {
					log.Error().Err(err).Msg("syncengine: enqueue dead-letter cleanup failed")
				}
			}
		}
	}()
}

func (e *AttendanceEngine) enqueueDrainForActiveConfigs(ctx context.Context) {
	configs, err := e.configs.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("syncengine: listing active configs for drain failed")
		return
	}
	for _, c := range configs {
		if _, err := e.queue.EnqueueAttendanceDrain(queue.AttendanceDrainPayload{ConfigID: c.ID}, e.cfg.DrainInterval); err != nil {
			log.Error().Str("config_id", c.ID).Err(err).Msg("syncengine: enqueue drain failed")
		}
	}
}

func (e *AttendanceEngine) enqueueRetryForActiveConfigs(ctx context.Context) {
	configs, err := e.configs.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("syncengine: listing active configs for retry failed")
		return
	}
	for _, c := range configs {
		if _, err := e.queue.EnqueueAttendanceRetry(queue.AttendanceRetryPayload{ConfigID: c.ID}, e.cfg.RetryInterval); err != nil {
			log.Error().Str("config_id", c.ID).Err(err).Msg("syncengine: enqueue retry failed")
		}
	}
}

// DrainConfig runs one drain pass for configID: pulls a batch of pending
// rows, POSTs them, and marks the batch sent or failed as a whole. This
// is the asynq task handler body for TypeAttendanceDrain.
func (e *AttendanceEngine) DrainConfig(ctx context.Context, configID string) error {
	rows, err := e.attendance.PendingForConfig(ctx, configID, e.cfg.MaxRetry, e.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("syncengine: pending lookup: %w", err)
	}
	return e.sendBatch(ctx, configID, rows)
}

// RetryConfig runs one retry pass for configID, limited to rows whose
// backoff window has elapsed.
func (e *AttendanceEngine) RetryConfig(ctx context.Context, configID string) error {
	rows, err := e.attendance.RetryableForConfig(ctx, configID, e.cfg.MaxRetry, e.cfg.BatchSize, backoffMinutes)
	if err != nil {
		return fmt.Errorf("syncengine: retryable lookup: %w", err)
	}
	return e.sendBatch(ctx, configID, rows)
}

func (e *AttendanceEngine) sendBatch(ctx context.Context, configID string, rows []database.AttendanceLog) error {
	if len(rows) == 0 {
		return nil
	}

	config, err := e.configs.GetByID(ctx, configID)
	if err != nil {
		return fmt.Errorf("syncengine: config lookup: %w", err)
	}

	adapter := thirdparty.NewHTTPAdapter(toAdapterConfig(*config, e.encryptor))

	snByTerminal := make(map[string]string)

	ids := make([]string, 0, len(rows))
	records := make([]thirdparty.AttendancePayloadRecord, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)

		sn, cached := snByTerminal[r.TerminalID]
		if !cached {
			if terminal, err := e.terminals.GetByID(ctx, r.TerminalID); err == nil {
				sn = terminal.SN
			}
			snByTerminal[r.TerminalID] = sn
		}

		rec := thirdparty.AttendancePayloadRecord{
			LogID:         r.ID,
			TerminalSN:    sn,
			Enrollid:      r.Enrollid,
			Timestamp:     r.Time.Format(time.RFC3339),
			Mode:          r.Mode,
			Inout:         r.Inout,
			AccessGranted: r.AccessGranted,
		}
		if r.Event.Valid {
			rec.Event = r.Event.String
		}
		if r.Temperature.Valid {
			rec.Temperature = r.Temperature.Float64
		}
		records = append(records, rec)
	}

	batch := thirdparty.AttendanceBatch{
		Attendance: records,
		Source:     "tm20_biometric",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Count:      len(records),
	}

	sendErr := adapter.SendAttendance(ctx, batch)
	if sendErr == nil {
		if err := e.attendance.MarkSent(ctx, ids); err != nil {
			return fmt.Errorf("syncengine: mark sent: %w", err)
		}
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{Kind: eventbus.AttendanceBatch, Data: map[string]any{"config_id": configID, "count": len(ids), "status": "sent"}})
		}
		return nil
	}

	if err := e.attendance.MarkFailed(ctx, ids, sendErr.Error(), e.cfg.MaxRetry); err != nil {
		return fmt.Errorf("syncengine: mark failed: %w", err)
	}

	adapterErr, ok := sendErr.(*thirdparty.AdapterError)
	if ok && adapterErr.Kind == thirdparty.KindRateLimit && adapterErr.RetryAfter > 0 {
		idx := 0
		if len(backoffMinutes) > 0 {
			idx = backoffMinutes[0]
		}
		_ = e.attendance.DelayForRateLimit(ctx, ids, time.Duration(idx)*time.Minute, adapterErr.RetryAfter)
	}

	if ok && adapterErr.Kind == thirdparty.KindAuth {
		log.Error().Str("config_id", configID).Err(sendErr).Msg("syncengine: third-party rejected credentials")
		sentry.CaptureExceptionWithContext(ctx, sendErr, "attendance_sync_auth_rejected")
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{Kind: eventbus.ErrorOccurred, Data: map[string]any{"config_id": configID, "error": sendErr.Error(), "kind": "auth"}})
		}
	}

	return sendErr
}

// ResetFailed returns dead-lettered rows to pending, all rows when ids
// is nil or only the given ids otherwise.
func (e *AttendanceEngine) ResetFailed(ctx context.Context, ids []string) (int64, error) {
	return e.attendance.ResetFailed(ctx, ids)
}

// CleanupOld deletes dead-lettered rows past the retention window.
func (e *AttendanceEngine) CleanupOld(ctx context.Context) (int64, error) {
	days := int(e.cfg.DeadLetterRetention.Hours() / 24)
	return e.attendance.CleanupFailedOlderThan(ctx, days)
}

// toAdapterConfig bridges a database.ThirdPartyConfig into the
// transport-facing thirdparty.Config, decrypting AuthToken when an
// encryptor is configured.
func toAdapterConfig(c database.ThirdPartyConfig, encryptor *crypto.Encryptor) thirdparty.Config {
	token := ""
	if c.AuthToken.Valid {
		token = c.AuthToken.String
		if encryptor != nil {
			if plain, err := encryptor.Decrypt(token); err == nil {
				token = plain
			}
		}
	}

	cfg := thirdparty.Config{
		BaseURL:        c.BaseURL,
		AuthType:       c.AuthType,
		AuthToken:      token,
		TimeoutSeconds: c.TimeoutSeconds,
	}
	if c.UsersEndpoint.Valid {
		cfg.UsersEndpoint = c.UsersEndpoint.String
	}
	if c.AttendanceEndpoint.Valid {
		cfg.AttendanceEndpoint = c.AttendanceEndpoint.String
	}
	if c.AuthHeaderName.Valid {
		cfg.AuthHeaderName = c.AuthHeaderName.String
	}
	return cfg
}
