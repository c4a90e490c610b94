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
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parley/cmd/parley/cli"
	"github.com/bureau-foundation/parley/lib/agent"
	"github.com/bureau-foundation/parley/lib/chat"
	"github.com/bureau-foundation/parley/lib/clock"
	"github.com/bureau-foundation/parley/lib/config"
	"github.com/bureau-foundation/parley/lib/history"
	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/llm"
	"github.com/bureau-foundation/parley/lib/picker"
	"github.com/bureau-foundation/parley/lib/session"
)

// pickSession is the --resume value given without an ID.
const pickSession = "?"

type chatParams struct {
	configParams
	Resume  string `flag:"resume,r" desc:"resume a session by ID, or pick one when no ID is given"`
	Profile string `flag:"profile" desc:"JSONC agent profile (overrides paths.profile)"`
}

func chatCommand(terminal streams) *cli.Command {
	var params chatParams
	return &cli.Command{
		Name:    "chat",
		Summary: "Start or resume a conversation",
		Description: `Start an interactive conversation, or resume an earlier one.

Type /help at the prompt for the chat commands. Ctrl-C during an
answer stops it; at the prompt it leaves.`,
		Usage: "parley chat [--resume [ID]] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := cli.FlagsFromParams("chat", &params)
			flagSet.Lookup("resume").NoOptDefVal = pickSession
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Continue a known session", Command: "parley chat --resume 20260314-150926"},
			{Description: "Chat with a reviewer persona", Command: "parley chat --profile ~/.parley/profiles/reviewer.jsonc"},
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			// "--resume ID" leaves the ID positional.
			if params.Resume == pickSession && len(args) == 1 {
				params.Resume, args = args[0], nil
			}
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
			}
			return runChat(ctx, terminal, params)
		},
	}
}

func runChat(ctx context.Context, terminal streams, params chatParams) error {
	loaded, logger, err := params.load("chat")
	if err != nil {
		return err
	}
	if params.Profile != "" {
		loaded.Paths.Profile = params.Profile
	}
	if err := loaded.EnsurePaths(); err != nil {
		return err
	}

	profile := agent.DefaultProfile()
	if loaded.Paths.Profile != "" {
		if profile, err = agent.LoadProfile(loaded.Paths.Profile); err != nil {
			return err
		}
	}
	prices, err := ledger.LoadPriceTable(loaded.Paths.Pricing)
	if err != nil {
		return err
	}

	provider, err := agent.NewProvider(loaded.EndpointSpecs(), profile, agent.ProviderOptions{Logger: logger})
	if errors.Is(err, llm.ErrNoProvider) {
		return fmt.Errorf("%w\n\nSet one of %s, or add an endpoint to the config file.",
			err, strings.Join(keyVariables(loaded), ", "))
	}
	if err != nil {
		return err
	}
	model := provider.Primary().Model

	options := session.Options{
		Root:               loaded.Paths.Root,
		Model:              model,
		ContextWindow:      loaded.Session.ContextWindow,
		Threshold:          loaded.Session.CompressionThreshold,
		Summarizer:         agent.NewSummarizer(provider, model),
		Titler:             agent.NewTitler(provider, model),
		Prices:             prices,
		DisableCheckpoints: !loaded.Session.Checkpoints,
		Logger:             logger,
	}

	manager, resumed, err := openSession(ctx, terminal, params.Resume, options, logger)
	if err != nil || manager == nil {
		return err
	}
	defer manager.Close()

	prompts, err := history.Open(loaded.Paths.Root, clock.Real(), logger)
	if err != nil {
		logger.Warn("prompt history unavailable", "error", err)
		prompts = nil
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	base := profile.Config(model, loaded.Session.MaxOutputTokens)
	runErr := chat.Run(ctx, chat.Config{
		Session: manager,
		Base:    base,
		NewAgent: func(config agent.Config) agent.Agent {
			return agent.NewLLMAgent(provider, config, logger)
		},
		History:    prompts,
		Renderer:   newRenderer(terminal.stdout, base.AssistantName),
		Input:      terminal.stdin,
		Output:     terminal.stdout,
		Interrupts: interrupts,
		Resumed:    resumed,
		Logger:     logger,
	})

	// Closed first so the catalog records the final title.
	manager.Close()
	if _, err := catalog(context.WithoutCancel(ctx), loaded.Paths.Root, logger); err != nil {
		logger.Warn("refreshing session catalog failed", "error", err)
	}
	return runErr
}

// openSession starts a fresh session, or resumes id. The pick value
// offers a picker first; a nil manager with a nil error means the user
// walked away from it.
func openSession(ctx context.Context, terminal streams, id string, options session.Options, logger *slog.Logger) (*session.Manager, bool, error) {
	if id == "" {
		manager, err := session.New(options)
		return manager, false, err
	}

	if id == pickSession {
		summaries, err := catalog(ctx, options.Root, logger)
		if err != nil {
			return nil, false, err
		}
		id, err = picker.Pick(summaries, picker.Options{Input: terminal.stdin, Output: terminal.stdout})
		switch {
		case errors.Is(err, picker.ErrNoSessions):
			fmt.Fprintln(terminal.stdout, "No sessions to resume yet. Run 'parley chat' to start one.")
			return nil, false, nil
		case errors.Is(err, picker.ErrCancelled):
			return nil, false, nil
		case err != nil:
			return nil, false, err
		}
	}

	manager, err := session.Resume(id, options)
	if errors.Is(err, session.ErrNotFound) {
		return nil, false, fmt.Errorf("no session %q (see 'parley sessions list')", id)
	}
	return manager, true, err
}

// keyVariables lists the API key variables of the configured
// endpoints, for the no-endpoint hint.
func keyVariables(loaded *config.Config) []string {
	var names []string
	for _, endpoint := range loaded.Endpoints {
		if endpoint.APIKeyEnv != "" {
			names = append(names, endpoint.APIKeyEnv)
		}
	}
	return names
}
