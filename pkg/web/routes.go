package web

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// Register mounts the admin routes on app. metricsHandler may be nil.
func Register(app *fiber.App, h *APIHandlers, metricsHandler http.Handler) {
	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowbot API")
	})

	app.Get("/health", h.HealthCheck)
	app.Get("/status", h.GetStatus)
	app.Get("/messages", h.GetMessages)
	app.Post("/reload", h.Reload)
	app.Post("/match", h.Match)

	v := app.Group("/validate")
	v.Post("/flow", h.ValidateFlow)
	v.Post("/connection", h.ValidateConnection)

	if metricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}
}
