package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowbot",
		Usage:                 "Answer chat messages with keyword triggered flows and templates",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "backend-url",
				Usage:   "Base URL of the REST backend serving flows, templates and message send",
				Value:   "http://localhost:3000/api",
				Sources: cli.EnvVars("FLOWBOT_BACKEND_URL"),
			},
			&cli.StringFlag{
				Name:    "credential-store",
				Usage:   "Where the bearer credential is kept (file, redis, env)",
				Value:   "file",
				Sources: cli.EnvVars("FLOWBOT_CREDENTIAL_STORE"),
			},
			&cli.StringFlag{
				Name:    "credential-file",
				Usage:   "Credential file for the file store",
				Value:   ".flowbot/credential",
				Sources: cli.EnvVars("FLOWBOT_CREDENTIAL_FILE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the redis store",
				Value:   "redis://localhost:6379/0",
				Sources: cli.EnvVars("FLOWBOT_REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-key",
				Usage:   "Redis key holding the credential",
				Value:   "flowbot:credential",
				Sources: cli.EnvVars("FLOWBOT_REDIS_KEY"),
			},
			&cli.StringFlag{
				Name:    "credential",
				Usage:   "Credential value for the env store",
				Sources: cli.EnvVars("FLOWBOT_CREDENTIAL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus for engine events (memory, kafka, none)",
				Value:   "memory",
				Sources: cli.EnvVars("FLOWBOT_EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers for the kafka event bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
			NewMatchCommand(),
			NewLoginCommand(),
			NewLogoutCommand(),
			NewEventsCommand(),
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
