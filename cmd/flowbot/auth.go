package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowbot/pkg/log"
	cli "github.com/urfave/cli/v3"
)

var ErrMissingCredential = errors.New("a credential argument is required")

func NewLoginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Store the bearer credential used by running engines",
		ArgsUsage: "<credential>",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowbot-auth")

			credential := command.Args().First()
			if credential == "" {
				return ErrMissingCredential
			}

			store, closeStore, err := credentialStore(command, logger)
			if err != nil {
				return err
			}

			defer func() { _ = closeStore() }()

			if err := store.Set(ctx, credential); err != nil {
				return fmt.Errorf("failed to store credential: %w", err)
			}

			logger.InfoContext(ctx, "Credential stored", "store", command.String("credential-store"))

			return nil
		},
	}
}

func NewLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Remove the stored credential, disconnecting running engines",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowbot-auth")

			store, closeStore, err := credentialStore(command, logger)
			if err != nil {
				return err
			}

			defer func() { _ = closeStore() }()

			if err := store.Clear(ctx); err != nil {
				return fmt.Errorf("failed to clear credential: %w", err)
			}

			logger.InfoContext(ctx, "Credential removed", "store", command.String("credential-store"))

			return nil
		},
	}
}
