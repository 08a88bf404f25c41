package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dukex/flowbot/pkg/flow"
	"github.com/dukex/flowbot/pkg/log"
	"github.com/dukex/flowbot/pkg/models"
	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
)

// Static error variables for linter compliance.
var (
	ErrInvalidFlows        = errors.New("invalid flows found")
	ErrNoInput             = errors.New("no input files given")
	ErrInvalidTemplateMode = errors.New("invalid template match mode")
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate flow definitions exported from the builder",
		ArgsUsage: "<flow.json>...",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowbot-validate")

			paths := command.Args().Slice()
			if len(paths) == 0 {
				return ErrNoInput
			}

			validate := validator.New(validator.WithRequiredStructEnabled())
			out := output(command)
			invalid := 0

			for _, path := range paths {
				flows, err := readFlows(path)
				if err != nil {
					return err
				}

				for _, f := range flows {
					if !reportFlow(out, validate, path, f) {
						invalid++
					}
				}
			}

			if invalid > 0 {
				logger.WarnContext(ctx, "Validation failed", "invalid", invalid)

				return fmt.Errorf("%w: %d", ErrInvalidFlows, invalid)
			}

			return nil
		},
	}
}

// reportFlow writes one validation line per flow and reports whether it passed.
func reportFlow(w io.Writer, validate *validator.Validate, path string, f models.Flow) bool {
	name := f.ID
	if f.Name != "" {
		name = fmt.Sprintf("%s (%s)", f.ID, f.Name)
	}

	if err := validate.Struct(f); err != nil {
		_, _ = fmt.Fprintf(w, "FAIL %s %s\n  %s\n", path, name, err)

		return false
	}

	report, err := flow.ValidateFlow(f)
	if err != nil {
		_, _ = fmt.Fprintf(w, "FAIL %s %s\n", path, name)

		for _, line := range strings.Split(err.Error(), "\n") {
			_, _ = fmt.Fprintf(w, "  %s\n", line)
		}

		return false
	}

	_, _ = fmt.Fprintf(w, "ok   %s %s\n", path, name)

	if len(report.Unreachable) > 0 {
		_, _ = fmt.Fprintf(w, "  unreachable: %s\n", strings.Join(report.Unreachable, ", "))
	}

	return true
}
