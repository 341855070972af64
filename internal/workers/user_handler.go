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

// UserHandler adapts syncengine.UserSyncEngine to asynq task handler
// signatures.
type UserHandler struct {
	engine *syncengine.UserSyncEngine
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(engine *syncengine.UserSyncEngine) *UserHandler {
	return &UserHandler{engine: engine}
}

func (h *UserHandler) HandlePull(ctx context.Context, task *asynq.Task) error {
	tx := sentry.StartBackgroundTransaction(ctx, "worker.user_pull")
	defer tx.Finish()
	ctx = tx.Context()

	var payload queue.UserPullPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		sentry.CaptureExceptionWithContext(ctx, err, "user_pull_unmarshal")
		return fmt.Errorf("workers: unmarshal user pull payload: %w", err)
	}

	if err := h.engine.PullForMapping(ctx, payload.ConfigID, payload.TerminalID); err != nil {
		sentry.CaptureExceptionWithContext(ctx, err, "user_pull")
		return err
	}
	return nil
}

func (h *UserHandler) HandlePush(ctx context.Context, task *asynq.Task) error {
	tx := sentry.StartBackgroundTransaction(ctx, "worker.user_push")
	defer tx.Finish()
	ctx = tx.Context()

	var payload queue.UserPushPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		sentry.CaptureExceptionWithContext(ctx, err, "user_push_unmarshal")
		return fmt.Errorf("workers: unmarshal user push payload: %w", err)
	}

	if err := h.engine.PushPending(ctx, payload.TerminalID); err != nil {
		sentry.CaptureExceptionWithContext(ctx, err, "user_push")
		return err
	}
	return nil
}
