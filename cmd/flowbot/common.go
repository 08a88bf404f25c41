package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dukex/flowbot/pkg/cmd"
	"github.com/dukex/flowbot/pkg/credentials"
	"github.com/dukex/flowbot/pkg/models"
	cli "github.com/urfave/cli/v3"
)

func credentialStore(command *cli.Command, logger *slog.Logger) (credentials.Store, func() error, error) {
	return cmd.NewCredentialStore(cmd.CredentialOptions{
		Store:    command.String("credential-store"),
		File:     command.String("credential-file"),
		RedisURL: command.String("redis-url"),
		RedisKey: command.String("redis-key"),
		Env:      command.String("credential"),
	}, logger)
}

func output(command *cli.Command) io.Writer {
	if w := command.Root().Writer; w != nil {
		return w
	}

	return os.Stdout
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// readFlows loads a file holding either one flow or an array of flows.
func readFlows(path string) ([]models.Flow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	raw = bytes.TrimSpace(raw)

	if bytes.HasPrefix(raw, []byte("[")) {
		var flows []models.Flow
		if err := json.Unmarshal(raw, &flows); err != nil {
			return nil, fmt.Errorf("failed to decode flows in %s: %w", path, err)
		}

		return flows, nil
	}

	var f models.Flow
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to decode flow in %s: %w", path, err)
	}

	return []models.Flow{f}, nil
}

func readTemplates(path string) ([]models.Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var templates []models.Template
	if err := json.Unmarshal(raw, &templates); err != nil {
		return nil, fmt.Errorf("failed to decode templates in %s: %w", path, err)
	}

	return templates, nil
}
