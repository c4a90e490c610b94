// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parley/cmd/parley/cli"
	"github.com/bureau-foundation/parley/lib/archive"
	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/session"
	"github.com/bureau-foundation/parley/lib/sessionindex"
	"github.com/bureau-foundation/parley/lib/sessionlog"
	"github.com/bureau-foundation/parley/lib/watch"
)

func sessionsCommand(terminal streams) *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Summary: "List, inspect and move recorded sessions",
		Subcommands: []*cli.Command{
			sessionsListCommand(terminal),
			sessionsShowCommand(terminal),
			sessionsSearchCommand(terminal),
			sessionsWatchCommand(terminal),
			sessionsExportCommand(terminal),
			sessionsImportCommand(terminal),
		},
	}
}

type listParams struct {
	configParams
	cli.JSONOutput
	Limit int `flag:"limit,n" desc:"show at most this many sessions (0 for all)" default:"20"`
}

func sessionsListCommand(terminal streams) *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Summary: "List sessions, most recent first",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
			}
			loaded, logger, err := params.load("sessions/list")
			if err != nil {
				return err
			}
			summaries, err := catalog(ctx, loaded.Paths.Root, logger)
			if err != nil {
				return err
			}
			if params.Limit > 0 && len(summaries) > params.Limit {
				summaries = summaries[:params.Limit]
			}
			if done, err := params.EmitJSON(terminal.stdout, summaries); done {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(terminal.stdout, "No sessions yet. Run 'parley chat' to start one.")
				return nil
			}
			return writeSummaries(terminal, summaries)
		},
	}
}

// writeSummaries prints summaries as a table.
func writeSummaries(terminal streams, summaries []session.Summary) error {
	writer := tabwriter.NewWriter(terminal.stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "ID\tTITLE\tMESSAGES\tLAST ACTIVITY\tCOST")
	for _, summary := range summaries {
		title := summary.Title
		if summary.Compressed {
			title += " (compressed)"
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\n",
			summary.ID,
			title,
			summary.MessageCount,
			summary.LastActivity.Local().Format("2006-01-02 15:04"),
			ledger.FormatCost(summary.Costs.Total.CostUSD),
		)
	}
	return writer.Flush()
}

type showParams struct {
	configParams
	cli.JSONOutput
}

func sessionsShowCommand(terminal streams) *cli.Command {
	var params showParams
	return &cli.Command{
		Name:    "show",
		Summary: "Print a session's conversation",
		Usage:   "parley sessions show <id> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return errors.New("usage: parley sessions show <id>")
			}
			loaded, logger, err := params.load("sessions/show")
			if err != nil {
				return err
			}
			summary, err := session.Summarize(loaded.Paths.Root, args[0])
			if err != nil {
				return err
			}
			events, skipped, err := sessionlog.ReadEvents(filepath.Join(summary.Directory, sessionlog.EventsFile))
			if err != nil {
				return err
			}
			if skipped > 0 {
				logger.Warn("skipped unreadable events", "session", summary.ID, "count", skipped)
			}
			if done, err := params.EmitJSON(terminal.stdout, events); done {
				return err
			}

			renderer := newRenderer(terminal.stdout, "")
			fmt.Fprintf(terminal.stdout, "%s\n%s\n\n",
				renderer.Panel(summary.Title, fmt.Sprintf("%s · %d messages · %s",
					summary.ID, summary.MessageCount, ledger.Summary(summary.Costs.Total))),
				renderer.Rule())
			return renderer.Conversation(terminal.stdout, events)
		},
	}
}

type searchParams struct {
	configParams
	cli.JSONOutput
	Limit   int  `flag:"limit,n" desc:"show at most this many matches" default:"20"`
	Content bool `flag:"content" desc:"rank by the conversation text, not just titles"`
}

func sessionsSearchCommand(terminal streams) *cli.Command {
	var params searchParams
	return &cli.Command{
		Name:    "search",
		Summary: "Find sessions by title, ID or conversation text",
		Description: `Find sessions whose title or ID contains the query. With --content,
rank every session by how well its prompts, answers and summaries
match the query words instead.`,
		Usage: "parley sessions search <words...> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("search", &params)
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) == 0 {
				return errors.New("usage: parley sessions search <words...>")
			}
			loaded, logger, err := params.load("sessions/search")
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			var matches []session.Summary
			if params.Content {
				summaries, err := catalog(ctx, loaded.Paths.Root, logger)
				if err != nil {
					return err
				}
				matches = sessionindex.SearchContent(summaries, query, params.Limit, logger)
			} else {
				err = withIndex(ctx, loaded.Paths.Root, logger, func(index *sessionindex.Index) error {
					var searchErr error
					matches, searchErr = index.Search(ctx, query, params.Limit)
					return searchErr
				})
				if err != nil {
					return err
				}
			}
			if done, err := params.EmitJSON(terminal.stdout, matches); done {
				return err
			}
			if len(matches) == 0 {
				fmt.Fprintf(terminal.stderr, "No sessions match %q.\n", query)
				return &cli.ExitError{Code: 1}
			}
			return writeSummaries(terminal, matches)
		},
	}
}

type watchParams struct {
	configParams
	FromStart bool `flag:"from-start" desc:"print the conversation so far before following"`
}

func sessionsWatchCommand(terminal streams) *cli.Command {
	var params watchParams
	return &cli.Command{
		Name:    "watch",
		Summary: "Follow a session as it is written",
		Description: `Print a session's conversation as another parley process records it.
Ctrl-C stops watching.`,
		Usage: "parley sessions watch <id> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("watch", &params)
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return errors.New("usage: parley sessions watch <id>")
			}
			loaded, logger, err := params.load("sessions/watch")
			if err != nil {
				return err
			}
			if err := session.ValidateID(args[0]); err != nil {
				return err
			}
			path := filepath.Join(session.Directory(loaded.Paths.Root, args[0]), sessionlog.EventsFile)

			var offset int64
			if info, err := os.Stat(path); err == nil && !params.FromStart {
				offset = info.Size()
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			return followSession(ctx, terminal, path, offset, logger)
		},
	}
}

// followSession renders each event appended to path from offset until
// ctx ends.
func followSession(ctx context.Context, terminal streams, path string, offset int64, logger *slog.Logger) error {
	renderer := newRenderer(terminal.stdout, "")
	return watch.FollowEvents(ctx, path, watch.Options{Offset: offset, Logger: logger}, func(event sessionlog.Event) {
		if event.Kind == sessionlog.KindContextCompression {
			fmt.Fprintf(terminal.stdout, "%s\n\n", renderer.Faint("[context compressed]"))
			return
		}
		if err := renderer.Conversation(terminal.stdout, []sessionlog.Event{event}); err != nil {
			logger.Warn("rendering event failed", "error", err)
		}
	})
}

type exportParams struct {
	configParams
	Output     string   `flag:"output,o" desc:"bundle file to write (default <id>.parley, - for stdout)"`
	Recipients []string `flag:"recipient,r" desc:"age recipient to encrypt to (repeatable)"`
}

func sessionsExportCommand(terminal streams) *cli.Command {
	var params exportParams
	return &cli.Command{
		Name:    "export",
		Summary: "Write a session to a portable bundle",
		Usage:   "parley sessions export <id> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("export", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Export encrypted to a colleague's age key",
				Command:     "parley sessions export 20260314-150926 -r age1ql3z7hjy54pw3hyww5ayyfg7zqgvc7w3j2elw8zmrj2kg5sfn9aqmcac8p",
			},
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return errors.New("usage: parley sessions export <id>")
			}
			loaded, logger, err := params.load("sessions/export")
			if err != nil {
				return err
			}
			recipients, err := archive.ParseRecipients(params.Recipients)
			if err != nil {
				return err
			}
			id := args[0]
			if err := session.ValidateID(id); err != nil {
				return err
			}

			if params.Output == "-" {
				_, err := archive.Export(loaded.Paths.Root, id, terminal.stdout, archive.ExportOptions{Recipients: recipients})
				return err
			}
			path := params.Output
			if path == "" {
				path = id + ".parley"
			}
			bundle, err := exportToFile(loaded.Paths.Root, id, path, recipients)
			if err != nil {
				return err
			}
			logger.Info("exported session", "session", id, "path", path, "encrypted", len(recipients) > 0)
			fmt.Fprintf(terminal.stdout, "Exported %s (%d checkpoints) to %s\n", id, len(bundle.Checkpoints), path)
			return nil
		},
	}
}

// exportToFile writes the bundle to a sibling temporary file and
// renames it into place, so a failed export leaves nothing behind.
func exportToFile(root, id, path string, recipients []age.Recipient) (archive.Bundle, error) {
	temporary, err := os.CreateTemp(filepath.Dir(path), ".parley-export-*")
	if err != nil {
		return archive.Bundle{}, err
	}
	defer os.Remove(temporary.Name())

	bundle, err := archive.Export(root, id, temporary, archive.ExportOptions{Recipients: recipients})
	if closeErr := temporary.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return archive.Bundle{}, err
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return archive.Bundle{}, fmt.Errorf("writing %s: %w", path, err)
	}
	return bundle, nil
}

type importParams struct {
	configParams
	Identity string `flag:"identity,i" desc:"age identity file for encrypted bundles"`
}

func sessionsImportCommand(terminal streams) *cli.Command {
	var params importParams
	return &cli.Command{
		Name:    "import",
		Summary: "Add a session from an exported bundle",
		Usage:   "parley sessions import <file> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("import", &params)
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return errors.New("usage: parley sessions import <file>")
			}
			loaded, logger, err := params.load("sessions/import")
			if err != nil {
				return err
			}
			if err := loaded.EnsurePaths(); err != nil {
				return err
			}
			var identities []age.Identity
			if params.Identity != "" {
				if identities, err = archive.LoadIdentities(params.Identity); err != nil {
					return err
				}
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			id, err := archive.Import(loaded.Paths.Root, file, identities)
			if errors.Is(err, archive.ErrEncrypted) {
				return fmt.Errorf("%w (pass --identity)", err)
			}
			if err != nil {
				return err
			}
			if _, err := catalog(ctx, loaded.Paths.Root, logger); err != nil {
				logger.Warn("refreshing session catalog failed", "error", err)
			}
			logger.Info("imported session", "session", id, "path", args[0])
			fmt.Fprintf(terminal.stdout, "Imported session %s. Resume it with 'parley chat --resume %s'.\n", id, id)
			return nil
		},
	}
}
