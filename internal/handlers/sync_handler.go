package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nodebyte/tm20hub/internal/database"
	"github.com/nodebyte/tm20hub/internal/syncengine"
)

// SyncHandler exposes operator-triggered invocations of the sync engines,
// run synchronously so the caller's response reflects the outcome.
type SyncHandler struct {
	attendance *syncengine.AttendanceEngine
	users      *syncengine.UserSyncEngine
	terminals  *database.TerminalRepository
}

// NewSyncHandler builds a SyncHandler.
func NewSyncHandler(attendance *syncengine.AttendanceEngine, users *syncengine.UserSyncEngine, terminals *database.TerminalRepository) *SyncHandler {
	return &SyncHandler{attendance: attendance, users: users, terminals: terminals}
}

// TriggerAttendanceDrain runs one drain pass for :configID synchronously.
func (h *SyncHandler) TriggerAttendanceDrain(c *fiber.Ctx) error {
	configID := c.Params("configID")
	if err := h.attendance.DrainConfig(c.Context(), configID); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok", "config_id": configID})
}

// TriggerAttendanceRetry runs one retry pass for :configID synchronously.
func (h *SyncHandler) TriggerAttendanceRetry(c *fiber.Ctx) error {
	configID := c.Params("configID")
	if err := h.attendance.RetryConfig(c.Context(), configID); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok", "config_id": configID})
}

// resetRequest is the body for /api/v1/sync/attendance/reset.
type resetRequest struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

// ResetFailedAttendance returns dead-lettered rows to pending: either the
// given ids, or every dead-lettered row when all is true.
func (h *SyncHandler) ResetFailedAttendance(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if !req.All && len(req.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "either ids or all must be set"})
	}

	ids := req.IDs
	if req.All {
		ids = nil
	}

	n, err := h.attendance.ResetFailed(c.Context(), ids)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok", "rows_reset": n})
}

// TriggerUserSync runs a pull-then-push cycle for one terminal/config
// pair: pull fresh records from the back-office, then push anything left
// pending_sync down to the terminal's live session.
func (h *SyncHandler) TriggerUserSync(c *fiber.Ctx) error {
	terminalSN := c.Params("terminalSN")
	configID := c.Params("configID")

	terminal, err := h.terminals.GetBySN(c.Context(), terminalSN)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown terminal"})
	}

	if err := h.users.PullForMapping(c.Context(), configID, terminal.ID); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.users.PushPending(c.Context(), terminal.ID); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "stage": "push"})
	}

	return c.JSON(fiber.Map{"status": "ok", "terminal_sn": terminalSN, "config_id": configID})
}
