package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/flowbot/pkg/backend"
	"github.com/dukex/flowbot/pkg/log"
	"github.com/dukex/flowbot/pkg/models"
	"github.com/dukex/flowbot/pkg/rules"
	"github.com/dukex/flowbot/pkg/web"
	cli "github.com/urfave/cli/v3"
)

var ErrMissingText = errors.New("text to match is required")

func NewMatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "match",
		Aliases:   []string{"m"},
		Usage:     "Show which flow or template would answer a message",
		ArgsUsage: "<text>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "flows",
				Usage: "Flows file; rules are fetched from the backend when omitted",
			},
			&cli.StringFlag{
				Name:  "templates",
				Usage: "Templates file, used together with --flows",
			},
			&cli.StringFlag{
				Name:    "template-match",
				Usage:   "Template containment mode (bidirectional, strict)",
				Value:   string(rules.TemplateModeBidirectional),
				Sources: cli.EnvVars("FLOWBOT_TEMPLATE_MATCH"),
			},
			&cli.BoolFlag{
				Name:    "sort-rules",
				Usage:   "Order flows and templates by id instead of source order",
				Sources: cli.EnvVars("FLOWBOT_SORT_RULES"),
			},
			&cli.BoolFlag{
				Name:    "trim-exact",
				Usage:   "Ignore surrounding whitespace in exact-match rules",
				Sources: cli.EnvVars("FLOWBOT_TRIM_EXACT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowbot-match")

			text := strings.Join(command.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return ErrMissingText
			}

			mode, ok := rules.ParseTemplateMode(command.String("template-match"))
			if !ok {
				return fmt.Errorf("%w: %q", ErrInvalidTemplateMode, command.String("template-match"))
			}

			var (
				flows     []models.Flow
				templates []models.Template
				err       error
			)

			if path := command.String("flows"); path != "" {
				flows, templates, err = loadRuleFiles(path, command.String("templates"))
			} else {
				flows, templates, err = fetchRules(ctx, command)
			}

			if err != nil {
				return err
			}

			idx := rules.Build(flows, templates, rules.WithSortByID(command.Bool("sort-rules")))

			logger.DebugContext(ctx, "Rule index built", "flows", len(idx.Rules), "templates", len(idx.Templates))

			matcher := rules.NewMatcher(mode, rules.WithTrimmedExact(command.Bool("trim-exact")))

			return writeJSON(output(command), dryRun(idx, matcher, text))
		},
	}
}

func dryRun(idx *rules.Index, matcher *rules.Matcher, text string) web.MatchResponse {
	return web.NewMatchResponse(idx, matcher.Match(idx, text))
}

func loadRuleFiles(flowsPath, templatesPath string) ([]models.Flow, []models.Template, error) {
	flows, err := readFlows(flowsPath)
	if err != nil {
		return nil, nil, err
	}

	if templatesPath == "" {
		return flows, nil, nil
	}

	templates, err := readTemplates(templatesPath)
	if err != nil {
		return nil, nil, err
	}

	return flows, templates, nil
}

func fetchRules(ctx context.Context, command *cli.Command) ([]models.Flow, []models.Template, error) {
	logger := log.WithModule("flowbot-match")

	store, closeStore, err := credentialStore(command, logger)
	if err != nil {
		return nil, nil, err
	}

	defer func() { _ = closeStore() }()

	client := backend.NewClient(command.String("backend-url"), store, logger)

	flows, err := client.FetchFlows(ctx)
	if err != nil {
		return nil, nil, err
	}

	templates, err := client.FetchTemplates(ctx)
	if err != nil {
		return nil, nil, err
	}

	return flows, templates, nil
}
