package workers

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/nodebyte/tm20hub/internal/queue"
)

func TestAttendanceHandlerRejectsBadPayload(t *testing.T) {
	h := NewAttendanceHandler(nil)
	task := asynq.NewTask(queue.TypeAttendanceDrain, []byte("not json"))

	if err := h.HandleDrain(context.Background(), task); err == nil {
		t.Fatal("expected an unmarshal error, got nil")
	}
}

func TestUserHandlerRejectsBadPayload(t *testing.T) {
	h := NewUserHandler(nil)
	task := asynq.NewTask(queue.TypeUserPush, []byte("not json"))

	if err := h.HandlePush(context.Background(), task); err == nil {
		t.Fatal("expected an unmarshal error, got nil")
	}
}
