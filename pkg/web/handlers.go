package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukex/flowbot/pkg/channel"
	"github.com/dukex/flowbot/pkg/flow"
	"github.com/dukex/flowbot/pkg/models"
	"github.com/dukex/flowbot/pkg/rules"
	"github.com/dukex/flowbot/pkg/session"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Engine is the part of the engine session exposed over HTTP.
type Engine interface {
	Status() session.Status
	Messages(chatID string) []models.MessageRecord
	Reload(ctx context.Context) error
}

// Snapshots gives read access to the published rule index.
type Snapshots interface {
	Load() *rules.Index
}

type APIHandlers struct {
	engine    Engine
	snapshots Snapshots
	matcher   *rules.Matcher
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	engine Engine,
	snapshots Snapshots,
	matcher *rules.Matcher,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		snapshots: snapshots,
		matcher:   matcher,
		validator: validator,
		logger:    logger.With("module", "web"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := h.engine.Status()
	connected := status.State == channel.StateConnected

	health := "degraded"
	message := "Flowbot is not connected to the chat gateway"
	httpStatus := http.StatusServiceUnavailable

	if connected {
		health = "healthy"
		message = "Flowbot is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  health,
		"message": message,
		"checkers": fiber.Map{
			"channel": fiber.Map{
				"state": status.State,
				"ok":    connected,
			},
			"rules": fiber.Map{
				"flows":     status.Flows,
				"templates": status.Templates,
				"ok":        status.LastError == "",
			},
		},
	})
}

func (h *APIHandlers) GetStatus(c fiber.Ctx) error {
	return c.JSON(h.engine.Status())
}

func (h *APIHandlers) GetMessages(c fiber.Ctx) error {
	chatID := c.Query("chat_id")

	messages := h.engine.Messages(chatID)
	if messages == nil {
		messages = []models.MessageRecord{}
	}

	return c.JSON(MessagesResponse{ChatID: chatID, Messages: messages})
}

func (h *APIHandlers) ValidateFlow(c fiber.Ctx) error {
	var f models.Flow

	if err := c.Bind().JSON(&f); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	if err := h.validator.Struct(f); err != nil {
		return badRequest(c, err.Error())
	}

	report, err := flow.ValidateFlow(f)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(newValidateFlowResponse(report))
}

func (h *APIHandlers) ValidateConnection(c fiber.Ctx) error {
	var req ValidateConnectionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := flow.ValidateConnection(req.Edge, req.Nodes, req.Edges); err != nil {
		if !flow.IsValidationError(err) {
			return internalError(c, err)
		}

		return c.JSON(ValidateConnectionResponse{Valid: false, Error: err.Error()})
	}

	return c.JSON(ValidateConnectionResponse{Valid: true})
}

func (h *APIHandlers) Match(c fiber.Ctx) error {
	var req MatchRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	idx := h.snapshots.Load()

	return c.JSON(NewMatchResponse(idx, h.matcher.Match(idx, req.Text)))
}

func (h *APIHandlers) Reload(c fiber.Ctx) error {
	if err := h.engine.Reload(c.Context()); err != nil {
		h.logger.WarnContext(c.Context(), "Manual reload failed", "error", err)

		return handleEngineError(c, err)
	}

	return c.JSON(h.engine.Status())
}
