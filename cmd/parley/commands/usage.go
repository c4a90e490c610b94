// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parley/cmd/parley/cli"
	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/sessionindex"
)

type usageParams struct {
	configParams
	cli.JSONOutput
	Since time.Duration `flag:"since" desc:"only sessions active within this window (0 for all time)" default:"168h"`
}

// usageReport is the --json form of the usage command.
type usageReport struct {
	Since    *time.Time          `json:"since,omitempty"`
	Sessions int                 `json:"sessions"`
	Costs    ledger.SessionCosts `json:"costs"`
}

func usageCommand(terminal streams) *cli.Command {
	var params usageParams
	return &cli.Command{
		Name:    "usage",
		Summary: "Summarize token use and cost across sessions",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("usage", &params)
		},
		Examples: []cli.Example{
			{Description: "Everything ever spent", Command: "parley usage --since 0"},
		},
		Run: func(ctx context.Context, _ []string, _ *slog.Logger) error {
			loaded, logger, err := params.load("usage")
			if err != nil {
				return err
			}

			var report usageReport
			if params.Since > 0 {
				since := time.Now().Add(-params.Since)
				report.Since = &since
			}
			err = withIndex(ctx, loaded.Paths.Root, logger, func(index *sessionindex.Index) error {
				var since time.Time
				if report.Since != nil {
					since = *report.Since
				}
				var usageErr error
				report.Costs, report.Sessions, usageErr = index.Usage(ctx, since)
				return usageErr
			})
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(terminal.stdout, report); done {
				return err
			}
			return writeUsage(terminal, report)
		},
	}
}

func writeUsage(terminal streams, report usageReport) error {
	window := "all time"
	if report.Since != nil {
		window = "since " + report.Since.Local().Format("2006-01-02 15:04")
	}
	fmt.Fprintf(terminal.stdout, "%d sessions, %s\n", report.Sessions, window)
	if report.Costs.Total.TotalTokens == 0 {
		fmt.Fprintln(terminal.stdout, "No tokens used.")
		return nil
	}

	writer := tabwriter.NewWriter(terminal.stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "\nMODEL\tINPUT\tOUTPUT\tREQUESTS\tCOST")
	row := func(name string, costs ledger.UsageCosts) {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\n",
			name,
			ledger.FormatTokenCount(costs.InputTokens),
			ledger.FormatTokenCount(costs.OutputTokens),
			costs.Requests,
			ledger.FormatCost(costs.CostUSD),
		)
	}
	for _, name := range report.Costs.ModelNames() {
		row(name, report.Costs.Models[name])
	}
	row("total", report.Costs.Total)
	return writer.Flush()
}
