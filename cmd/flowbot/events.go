package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowbot/pkg/cmd"
	"github.com/dukex/flowbot/pkg/eventbus"
	"github.com/dukex/flowbot/pkg/events"
	"github.com/dukex/flowbot/pkg/log"
	cli "github.com/urfave/cli/v3"
)

var ErrEventsNeedBroker = errors.New("events command needs the kafka event bus")

func NewEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Print engine events published by running engines",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "consumer-group",
				Usage:   "Kafka consumer group suffix",
				Value:   "flowbot-events",
				Sources: cli.EnvVars("FLOWBOT_EVENTS_GROUP"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowbot-events")

			if command.String("event-bus") != "kafka" {
				return ErrEventsNeedBroker
			}

			eventBus, err := cmd.NewEventBus("kafka", command.String("kafka-brokers"), command.String("consumer-group"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			out := output(command)

			err = handleAll(eventBus, func(_ context.Context, event any) error {
				return writeJSON(out, event)
			})
			if err != nil {
				return err
			}

			if err := eventBus.Subscribe(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to events: %w", err)
			}

			logger.InfoContext(ctx, "Listening for engine events")

			<-ctx.Done()

			return nil
		},
	}
}

func handleAll(bus eventbus.EventSubscriber, handler eventbus.EventHandler) error {
	for _, eventType := range events.EventTypes {
		if err := bus.Handle(eventType, handler); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return nil
}
