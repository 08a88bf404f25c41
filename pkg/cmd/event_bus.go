// Package cmd holds constructors shared by the flowbot commands.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowbot/pkg/channels/gochannel"
	"github.com/dukex/flowbot/pkg/channels/kafka"
	"github.com/dukex/flowbot/pkg/eventbus"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrMissingOption       = errors.New("missing required option")
)

// NewEventBus creates the engine event bus for provider: "memory" (in-process),
// "kafka" (brokers is a comma separated list) or "none".
func NewEventBus(provider, brokers, consumerGroup string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "none":
		return eventbus.Nop{}, nil
	case "memory":
		pub, sub := gochannel.CreateChannel(wmLogger, 0)

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "kafka":
		list := kafka.ParseBrokers(brokers)

		pub, err := kafka.CreatePublisher(wmLogger, list)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
		}

		sub, err := kafka.CreateSubscriber(wmLogger, list, consumerGroup)
		if err != nil {
			_ = pub.Close()

			return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("event bus %q: %w", provider, ErrUnsupportedProvider)
	}
}
