// Package handlers is the minimal operator-facing HTTP surface: a health
// check and the handful of sync-trigger/devices-snapshot endpoints the
// three in-process engines need an external caller to reach. No admin
// UI, no CRUD, no auth — that layer lives outside this repo.
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nodebyte/tm20hub/internal/database"
	"github.com/nodebyte/tm20hub/internal/kv"
	"github.com/nodebyte/tm20hub/internal/registry"
	"github.com/nodebyte/tm20hub/internal/syncengine"
)

// SetupRoutes registers the operator HTTP surface on app.
func SetupRoutes(app *fiber.App, db *database.DB, kvStore *kv.Store, reg *registry.Registry, attendanceEngine *syncengine.AttendanceEngine, userEngine *syncengine.UserSyncEngine, terminals *database.TerminalRepository) {
	app.Get("/health", healthCheck(db, kvStore))

	syncHandler := NewSyncHandler(attendanceEngine, userEngine, terminals)
	app.Post("/api/v1/sync/attendance/reset", syncHandler.ResetFailedAttendance)
	app.Post("/api/v1/sync/attendance/:configID", syncHandler.TriggerAttendanceDrain)
	app.Post("/api/v1/sync/attendance/retry/:configID", syncHandler.TriggerAttendanceRetry)
	app.Post("/api/v1/sync/users/:terminalSN/:configID", syncHandler.TriggerUserSync)

	devicesHandler := NewDevicesHandler(reg)
	app.Get("/api/v1/devices", devicesHandler.List)
}

// healthCheck reports 200 iff the database and the Redis-backed KV
// mirror both answer within the request's deadline, 503 otherwise.
func healthCheck(db *database.DB, kvStore *kv.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbErr := db.HealthCheck(c.Context())

		var kvErr error
		if kvStore != nil {
			kvErr = kvStore.Ping(c.Context())
		}

		checks := fiber.Map{"database": "ok", "kv": "ok"}
		healthy := true

		if dbErr != nil {
			checks["database"] = dbErr.Error()
			healthy = false
		}
		if kvErr != nil {
			checks["kv"] = kvErr.Error()
			healthy = false
		}

		status := "healthy"
		code := fiber.StatusOK
		if !healthy {
			status = "unhealthy"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status":  status,
			"service": "tm20hub",
			"checks":  checks,
		})
	}
}
