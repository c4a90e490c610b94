// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the parley command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/parley/cmd/parley/cli"
	"github.com/bureau-foundation/parley/lib/version"
)

// streams are the terminal the commands talk to. Tests substitute
// buffers.
type streams struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Root builds the complete command tree on the process's terminal.
func Root() *cli.Command {
	return newRoot(streams{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr})
}

func newRoot(terminal streams) *cli.Command {
	chat := chatCommand(terminal)
	return &cli.Command{
		Name: "parley",
		Description: `Parley: a terminal chat with an LLM agent.

Every conversation is a session recorded under ~/.parley. Long
sessions are summarized as they approach the model's context window
so they can go on indefinitely, and any session can be resumed.`,
		Usage: "parley [command] [flags]",
		// Without a command parley chats.
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return chat.Execute(ctx, args, logger)
		},
		Subcommands: []*cli.Command{
			chat,
			sessionsCommand(terminal),
			usageCommand(terminal),
			configCommand(terminal),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					_, err := fmt.Fprintf(terminal.stdout, "parley %s\n", version.Full())
					return err
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Start a new conversation",
				Command:     "parley",
			},
			{
				Description: "Pick an earlier session to continue",
				Command:     "parley chat --resume",
			},
			{
				Description: "Find the session where retries were discussed",
				Command:     "parley sessions search retry backoff",
			},
			{
				Description: "See what the last week cost",
				Command:     "parley usage --since 168h",
			},
		},
	}
}
