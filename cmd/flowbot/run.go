package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowbot/pkg/backend"
	"github.com/dukex/flowbot/pkg/channel"
	"github.com/dukex/flowbot/pkg/cmd"
	"github.com/dukex/flowbot/pkg/dispatcher"
	"github.com/dukex/flowbot/pkg/eventbus"
	"github.com/dukex/flowbot/pkg/log"
	"github.com/dukex/flowbot/pkg/metrics"
	"github.com/dukex/flowbot/pkg/rules"
	"github.com/dukex/flowbot/pkg/session"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const defaultPort = 9092

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Connect to the chat gateway and answer inbound messages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "socket-url",
				Usage:    "Websocket URL of the real-time chat gateway",
				Required: true,
				Sources:  cli.EnvVars("FLOWBOT_SOCKET_URL"),
			},
			&cli.StringFlag{
				Name:    "send-via",
				Usage:   "Outbound path for replies (rest, socket)",
				Value:   "rest",
				Sources: cli.EnvVars("FLOWBOT_SEND_VIA"),
			},
			&cli.IntFlag{
				Name:    "api-port",
				Aliases: []string{"p"},
				Usage:   "Port of the admin API",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "dispatch-workers",
				Usage:   "Number of dispatcher workers",
				Value:   4,
				Sources: cli.EnvVars("FLOWBOT_DISPATCH_WORKERS"),
			},
			&cli.StringFlag{
				Name:    "template-match",
				Usage:   "Template containment mode (bidirectional, strict)",
				Value:   string(rules.TemplateModeBidirectional),
				Sources: cli.EnvVars("FLOWBOT_TEMPLATE_MATCH"),
			},
			&cli.BoolFlag{
				Name:    "sort-rules",
				Usage:   "Order flows and templates by id instead of backend order",
				Sources: cli.EnvVars("FLOWBOT_SORT_RULES"),
			},
			&cli.BoolFlag{
				Name:    "trim-exact",
				Usage:   "Ignore surrounding whitespace in exact-match rules",
				Sources: cli.EnvVars("FLOWBOT_TRIM_EXACT"),
			},
			&cli.StringFlag{
				Name:    "refresh-schedule",
				Usage:   "Cron spec for periodic rule refresh while connected",
				Value:   "@every 5m",
				Sources: cli.EnvVars("FLOWBOT_REFRESH_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("FLOWBOT_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowbot")

			logger.InfoContext(ctx, "Initializing Flowbot")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			mode, ok := rules.ParseTemplateMode(command.String("template-match"))
			if !ok {
				return fmt.Errorf("%w: %q", ErrInvalidTemplateMode, command.String("template-match"))
			}

			tracer, shutdownTracer, err := cmd.NewTracer(ctx, command.Bool("tracing"), "flowbot")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}()

			store, closeStore, err := credentialStore(command, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := closeStore(); err != nil {
					logger.ErrorContext(ctx, "Failed to close credential store", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "flowbot", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if command.String("event-bus") == "memory" {
				if err := logEvents(ctx, eventBus, logger); err != nil {
					return err
				}
			}

			m := metrics.New()
			client := backend.NewClient(command.String("backend-url"), store, logger)

			channelCfg := channel.DefaultConfig()
			channelCfg.URL = command.String("socket-url")

			channelOpts := []channel.Option{channel.WithMetrics(m)}
			if command.String("send-via") == "rest" {
				channelOpts = append(channelOpts, channel.WithSender(client))
			}

			ch := channel.New(channelCfg, channel.NewWebsocketDialer(logger), logger, channelOpts...)

			snapshots := rules.NewStore()
			matcher := rules.NewMatcher(mode, rules.WithTrimmedExact(command.Bool("trim-exact")))

			sessionCfg := session.DefaultConfig()
			sessionCfg.RefreshSchedule = command.String("refresh-schedule")
			sessionCfg.SortRules = command.Bool("sort-rules")

			engine := session.New(sessionCfg, store, ch, client, snapshots, logger,
				session.WithPublisher(eventBus),
				session.WithMetrics(m),
				session.WithTracer(tracer),
			)

			d := dispatcher.New(snapshots, matcher, ch, logger,
				dispatcher.WithPublisher(eventBus),
				dispatcher.WithMetrics(m),
				dispatcher.WithTracer(tracer),
				dispatcher.WithObserver(engine.Observe),
				dispatcher.WithEpochCheck(ch.IsCurrent),
				dispatcher.WithWorkers(command.Int("dispatch-workers"), 0),
			)

			if err := engine.Start(ctx); err != nil {
				return fmt.Errorf("failed to start engine session: %w", err)
			}

			api := NewAPI(logger, engine, snapshots, matcher, m)

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return d.Run(gctx, ch.Inbound())
			})

			g.Go(func() error {
				return api.Start(gctx, command.Int("api-port"))
			})

			err = g.Wait()

			shutdownCtx := context.WithoutCancel(ctx)

			if stopErr := engine.Stop(shutdownCtx); stopErr != nil {
				logger.ErrorContext(ctx, "Failed to stop engine session", "error", stopErr)
			}

			ch.Close(shutdownCtx)

			logger.InfoContext(shutdownCtx, "Flowbot stopped")

			return err
		},
	}
}

// logEvents logs every engine event published on the in-process bus.
func logEvents(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) error {
	logger = logger.With("module", "events")

	err := handleAll(bus, func(ctx context.Context, event any) error {
		logger.DebugContext(ctx, "Engine event", "event", event)

		return nil
	})
	if err != nil {
		return err
	}

	return bus.Subscribe(ctx)
}
