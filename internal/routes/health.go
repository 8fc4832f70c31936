package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds the liveness endpoint. It reports each backing
// dependency separately so a degraded Redis does not mask a healthy database.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		checks := fiber.Map{}
		healthy := true

		if d.DB != nil {
			st := pingStatus(d.DB.Ping(ctx))
			checks["postgres"] = st
			healthy = healthy && st == "ok"
		} else {
			checks["storage"] = "in-memory"
		}
		if d.Cache != nil {
			st := pingStatus(d.Cache.Ping(ctx).Err())
			checks["redis"] = st
			healthy = healthy && st == "ok"
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"checks":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func pingStatus(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
