package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/businessweb01/dbmiddleware/internal/relay"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether the booking store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterStatusRoutes mounts the status, liveness and readiness endpoints.
// auditDB may be nil when the attempt audit log is disabled.
func RegisterStatusRoutes(app fiber.Router, orch *relay.Orchestrator, source Pinger, auditDB *sql.DB) {
	app.Get("/", StatusHandler(orch))
	app.Get("/health", StatusHandler(orch))
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(source, auditDB))
}

func StatusHandler(orch *relay.Orchestrator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(orch.Snapshot())
	}
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(source Pinger, auditDB *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		sourceErr := source.Ping(ctx)

		sourceStatus := "ok"
		if sourceErr != nil {
			sourceStatus = "down"
		}

		checks := fiber.Map{
			"source": sourceStatus,
		}

		var auditErr error
		if auditDB != nil {
			auditErr = auditDB.PingContext(ctx)
			auditStatus := "ok"
			if auditErr != nil {
				auditStatus = "down"
			}
			checks["audit"] = auditStatus
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if sourceErr != nil || auditErr != nil {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
