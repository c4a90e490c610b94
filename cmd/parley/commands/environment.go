// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/parley/cmd/parley/cli"
	"github.com/bureau-foundation/parley/lib/config"
	"github.com/bureau-foundation/parley/lib/session"
	"github.com/bureau-foundation/parley/lib/sessionindex"
	"github.com/bureau-foundation/parley/lib/transcript"
)

// configParams is embedded by every command that reads the
// configuration.
type configParams struct {
	ConfigPath string `flag:"config,c" desc:"config file (default $PARLEY_CONFIG or ~/.parley/config.yaml)"`
	LogLevel   string `flag:"log-level" desc:"debug, info, warn or error (overrides logging.level)"`
}

// load reads and validates the configuration and returns a logger at
// its level, scoped to command.
func (params *configParams) load(command string) (*config.Config, *slog.Logger, error) {
	loaded, err := config.Load(params.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if params.LogLevel != "" {
		loaded.Logging.Level = params.LogLevel
	}
	if err := loaded.Validate(); err != nil {
		return nil, nil, err
	}
	level, _ := loaded.LogLevel()
	logger := cli.NewCommandLogger(level).With("command", command)
	if loaded.Source != "" {
		logger.Debug("loaded config", "path", loaded.Source)
	}
	return loaded, logger, nil
}

// catalog returns every session under root, most recent first, and
// brings the SQLite catalog up to date on the way. A catalog that
// cannot be opened is reported and bypassed.
func catalog(ctx context.Context, root string, logger *slog.Logger) ([]session.Summary, error) {
	index, err := sessionindex.Open(sessionindex.Path(root), logger)
	if err != nil {
		logger.Warn("session catalog unavailable, reading directories", "error", err)
		return session.List(root)
	}
	defer index.Close()
	return index.Refresh(ctx, root)
}

// withIndex opens the catalog, refreshes it and hands it to fn.
func withIndex(ctx context.Context, root string, logger *slog.Logger, fn func(*sessionindex.Index) error) error {
	index, err := sessionindex.Open(sessionindex.Path(root), logger)
	if err != nil {
		return err
	}
	defer index.Close()
	if _, err := index.Refresh(ctx, root); err != nil {
		return err
	}
	return fn(index)
}

// newRenderer styles output for writer at the terminal's width.
func newRenderer(writer io.Writer, assistantName string) *transcript.Renderer {
	return transcript.New(writer, transcript.Options{
		Width:         terminalWidth(writer),
		AssistantName: assistantName,
	})
}

// terminalWidth is the width of writer when it is a terminal, or zero
// to take the renderer's default.
func terminalWidth(writer io.Writer) int {
	file, ok := writer.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(file.Fd()))
	if err != nil {
		return 0
	}
	return width
}
