package web

import (
	"errors"

	"github.com/dukex/flowbot/pkg/backend"
	"github.com/dukex/flowbot/pkg/flow"
	"github.com/dukex/flowbot/pkg/session"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

func statusProblem(c fiber.Ctx, status int, kind string, detail string) error {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(problem)
}

// handleEngineError maps flow, session and backend errors onto problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case flow.IsValidationError(err):
		return statusProblem(c, fiber.StatusUnprocessableEntity, "invalid_flow", err.Error())

	case errors.Is(err, backend.ErrNoCredential):
		return statusProblem(c, fiber.StatusConflict, "no_credential", "no credential is configured")

	case errors.Is(err, session.ErrSuperseded):
		return statusProblem(c, fiber.StatusConflict, "superseded", "session changed while reloading")

	case errors.Is(err, session.ErrNotStarted):
		return statusProblem(c, fiber.StatusServiceUnavailable, "not_started", "engine session is not running")

	case backend.IsTransient(err):
		return statusProblem(c, fiber.StatusServiceUnavailable, "backend_unavailable", err.Error())

	case errors.Is(err, backend.ErrUnsuccessful):
		return statusProblem(c, fiber.StatusBadGateway, "backend_error", err.Error())

	default:
		return internalError(c, err)
	}
}
