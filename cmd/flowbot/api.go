package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/flowbot/pkg/metrics"
	"github.com/dukex/flowbot/pkg/rules"
	"github.com/dukex/flowbot/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger    *slog.Logger
	engine    web.Engine
	snapshots web.Snapshots
	matcher   *rules.Matcher
	metrics   *metrics.Metrics
	validate  *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	engine web.Engine,
	snapshots web.Snapshots,
	matcher *rules.Matcher,
	metrics *metrics.Metrics,
) *API {
	return &API{
		logger:    logger,
		engine:    engine,
		snapshots: snapshots,
		matcher:   matcher,
		metrics:   metrics,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.snapshots, a.matcher, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	web.Register(app, handlers, a.metrics.Handler())

	return app
}

// Start serves the API until ctx is done.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
