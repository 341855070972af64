package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/nodebyte/tm20hub/internal/queue"
	"github.com/nodebyte/tm20hub/internal/sentry"
	"github.com/nodebyte/tm20hub/internal/syncengine"
)

// AttendanceHandler adapts syncengine.AttendanceEngine to asynq task
// handler signatures.
type AttendanceHandler struct {
	engine *syncengine.AttendanceEngine
}

// NewAttendanceHandler builds an AttendanceHandler.
func NewAttendanceHandler(engine *syncengine.AttendanceEngine) *AttendanceHandler {
	return &AttendanceHandler{engine: engine}
}

func (h *AttendanceHandler) HandleDrain(ctx context.Context, task *asynq.Task) error {
	tx := sentry.StartBackgroundTransaction(ctx, "worker.attendance_drain")
	defer tx.Finish()
	ctx = tx.Context()

	var payload queue.AttendanceDrainPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		sentry.CaptureExceptionWithContext(ctx, err, "attendance_drain_unmarshal")
		return fmt.Errorf("workers: unmarshal attendance drain payload: %w", err)
	}

	if err := h.engine.DrainConfig(ctx, payload.ConfigID); err != nil {
		sentry.CaptureExceptionWithContext(ctx, err, "attendance_drain")
		return err
	}
	return nil
}

func (h *AttendanceHandler) HandleRetry(ctx context.Context, task *asynq.Task) error {
	tx := sentry.StartBackgroundTransaction(ctx, "worker.attendance_retry")
	defer tx.Finish()
	ctx = tx.Context()

	var payload queue.AttendanceRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		sentry.CaptureExceptionWithContext(ctx, err, "attendance_retry_unmarshal")
		return fmt.Errorf("workers: unmarshal attendance retry payload: %w", err)
	}

	if err := h.engine.RetryConfig(ctx, payload.ConfigID); err != nil {
		sentry.CaptureExceptionWithContext(ctx, err, "attendance_retry")
		return err
	}
	return nil
}

func (h *AttendanceHandler) HandleCleanup(ctx context.Context, task *asynq.Task) error {
	tx := sentry.StartBackgroundTransaction(ctx, "worker.cleanup_failed_attendance")
	defer tx.Finish()
	ctx = tx.Context()

	n, err := h.engine.CleanupOld(ctx)
	if err != nil {
		sentry.CaptureExceptionWithContext(ctx, err, "cleanup_failed_attendance")
		return err
	}
	tx.SetTag("rows_deleted", fmt.Sprintf("%d", n))
	return nil
}
