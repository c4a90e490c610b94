// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Parley is a terminal chat with an LLM agent whose sessions persist,
// compress themselves as they grow, and can be resumed.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/parley/cmd/parley/cli"
	"github.com/bureau-foundation/parley/cmd/parley/commands"
	"github.com/bureau-foundation/parley/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	// SIGINT is left to the commands: chat uses it to stop an answer.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:], cli.NewCommandLogger(slog.LevelWarn))
}
