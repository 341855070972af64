package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nodebyte/tm20hub/internal/registry"
)

// DevicesHandler exposes the in-process Device Registry snapshot, a
// faster path than reading the KV mirror for operators without a Redis
// client handy.
type DevicesHandler struct {
	registry *registry.Registry
}

// NewDevicesHandler builds a DevicesHandler.
func NewDevicesHandler(reg *registry.Registry) *DevicesHandler {
	return &DevicesHandler{registry: reg}
}

// List returns every currently registered session.
func (h *DevicesHandler) List(c *fiber.Ctx) error {
	devices := h.registry.Snapshot()
	return c.JSON(fiber.Map{"devices": devices, "count": len(devices)})
}
