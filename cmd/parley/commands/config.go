// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parley/cmd/parley/cli"
	"github.com/bureau-foundation/parley/lib/config"
)

func configCommand(terminal streams) *cli.Command {
	var params configParams
	return &cli.Command{
		Name:    "config",
		Summary: "Print the effective configuration",
		Description: `Print the configuration parley would run with, after defaults and
${VAR} expansion. Problems are listed on stderr and exit with status 1.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("config", &params)
		},
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			loaded, err := config.Load(params.ConfigPath)
			if err != nil {
				return err
			}
			if params.LogLevel != "" {
				loaded.Logging.Level = params.LogLevel
			}
			data, err := loaded.Marshal()
			if err != nil {
				return err
			}
			source := loaded.Source
			if source == "" {
				source = "built-in defaults"
			}
			fmt.Fprintf(terminal.stdout, "# %s\n%s", source, data)

			if err := loaded.Validate(); err != nil {
				fmt.Fprintf(terminal.stderr, "\nconfig problems:\n%v\n", err)
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
