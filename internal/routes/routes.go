package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/telemetra/device-event-svc/internal/handlers"
)

// SetupRoutes configures all application routes with dependencies.
func SetupRoutes(app *fiber.App, events *handlers.EventsHandler, health *handlers.HealthHandler) {
	app.Get("/health", health.HealthCheck)

	api := app.Group("/api/v1")
	{
		api.Post("/events", events.StoreEvent)
		api.Get("/events", events.GetEvents)
	}
}
