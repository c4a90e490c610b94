// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the interactive loop: it reads prompts, streams the
// agent's answers to the terminal, and drives the session manager
// through each turn.
//
// A turn logs the user message, checks compression, seeds the agent
// with the session's history and narrative, streams the answer, books
// the run's usage, logs the new messages, and checks compression
// again. The loop ends on a quit command, end of input, an interrupt
// at the prompt, or cancellation of its context.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bureau-foundation/parley/lib/agent"
	"github.com/bureau-foundation/parley/lib/history"
	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/llm"
	"github.com/bureau-foundation/parley/lib/session"
	"github.com/bureau-foundation/parley/lib/transcript"
)

// errInterrupted ends a read when an interrupt arrives at the prompt.
var errInterrupted = errors.New("chat: interrupted at prompt")

// Config wires a [Run].
type Config struct {
	// Session records the conversation. Required.
	Session *session.Manager

	// Base is the agent configuration before the session's narrative
	// is added.
	Base agent.Config

	// NewAgent builds the agent for one turn from the session's
	// current configuration. Required.
	NewAgent func(agent.Config) agent.Agent

	// History persists sent prompts. Nil keeps no history.
	History *history.History

	// Renderer styles the output. Nil renders for Output with
	// defaults.
	Renderer *transcript.Renderer

	// Input and Output default to the process's stdin and stdout.
	Input  io.Reader
	Output io.Writer

	// Interrupts delivers SIGINT. During a turn an interrupt cancels
	// the answer; at the prompt it ends the loop.
	Interrupts <-chan os.Signal

	// Resumed prints the stored conversation before the first prompt
	// and skips logging the system prompt again.
	Resumed bool

	Logger *slog.Logger
}

// Loop is one interactive chat.
type Loop struct {
	session    *session.Manager
	base       agent.Config
	newAgent   func(agent.Config) agent.Agent
	history    *history.History
	renderer   *transcript.Renderer
	input      lineReader
	output     io.Writer
	interrupts <-chan os.Signal
	resumed    bool
	logger     *slog.Logger

	assistantName string
}

// New validates config and prepares a loop.
func New(config Config) (*Loop, error) {
	if config.Session == nil {
		return nil, errors.New("chat: session is required")
	}
	if config.NewAgent == nil {
		return nil, errors.New("chat: agent constructor is required")
	}
	if config.Input == nil {
		config.Input = os.Stdin
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	assistantName := config.Base.AssistantName
	if assistantName == "" {
		assistantName = "Assistant"
	}
	if config.Renderer == nil {
		config.Renderer = transcript.New(config.Output, transcript.Options{AssistantName: assistantName})
	}

	var browse term.History
	if config.History != nil {
		browse = config.History
	}
	return &Loop{
		session:       config.Session,
		base:          config.Base,
		newAgent:      config.NewAgent,
		history:       config.History,
		renderer:      config.Renderer,
		input:         newLineReader(config.Input, config.Output, config.Renderer.UserLabel()+" ", browse),
		output:        config.Output,
		interrupts:    config.Interrupts,
		resumed:       config.Resumed,
		logger:        config.Logger,
		assistantName: assistantName,
	}, nil
}

// Run builds a loop from config and runs it.
func Run(ctx context.Context, config Config) error {
	loop, err := New(config)
	if err != nil {
		return err
	}
	return loop.Run(ctx)
}

// Run reads and answers prompts until the user quits, input ends, or
// ctx is cancelled. Only cancellation returns an error.
func (loop *Loop) Run(ctx context.Context) error {
	defer func() {
		if err := loop.input.Close(); err != nil {
			loop.logger.Warn("closing input failed", "error", err)
		}
	}()
	loop.welcome()
	if loop.resumed {
		loop.showResumed()
	} else if loop.base.SystemPrompt != "" {
		loop.session.LogSystemPrompt(loop.base.SystemPrompt)
	}

	for {
		line, err := loop.readLine(ctx)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, errInterrupted):
			fmt.Fprintln(loop.output)
			loop.goodbye()
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			return err
		}

		prompt := strings.TrimSpace(line)
		if prompt == "" {
			continue
		}
		if isCommand(prompt) {
			if !loop.command(prompt) {
				return nil
			}
			continue
		}

		if loop.history != nil && !loop.input.recordsHistory() {
			loop.history.Add(prompt)
		}
		if err := loop.turn(ctx, prompt); err != nil {
			return err
		}
	}
}

// lineResult carries one ReadLine outcome across goroutines.
type lineResult struct {
	line string
	err  error
}

// readLine waits for a line, an interrupt, or cancellation. An
// abandoned read is left blocked; the loop is ending anyway, and Run
// closes the input to put the terminal back.
func (loop *Loop) readLine(ctx context.Context) (string, error) {
	loop.input.ShowPrompt()
	results := make(chan lineResult, 1)
	go func() {
		line, err := loop.input.ReadLine()
		results <- lineResult{line, err}
	}()
	select {
	case result := <-results:
		return result.line, result.err
	case <-loop.interrupts:
		return "", errInterrupted
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// turn sends one prompt and streams the answer. A failed run is shown
// and logged as an error event; an interrupted run leaves no answer.
// An interrupt cancels whichever step is waiting, compression included.
// Only cancellation of ctx is returned.
func (loop *Loop) turn(ctx context.Context, prompt string) error {
	turnContext, stop := loop.watchInterrupts(ctx)
	defer stop()

	loop.session.LogUserMessage(prompt)
	loop.session.CompressContextIfNeeded(turnContext)
	if turnContext.Err() != nil {
		return loop.interrupted(ctx, "compressing context")
	}
	history := loop.session.MessageHistory()
	runner := loop.newAgent(loop.session.AgentConfig(loop.base))

	fmt.Fprintf(loop.output, "\n%s\n", loop.renderer.AssistantLabel())

	stream, err := runner.RunStream(turnContext, prompt, history)
	if err != nil {
		return loop.failed(ctx, turnContext, err)
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		delta, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if answer.Len() > 0 {
				fmt.Fprintln(loop.output)
			}
			return loop.failed(ctx, turnContext, err)
		}
		answer.WriteString(delta)
		fmt.Fprint(loop.output, delta)
	}
	fmt.Fprint(loop.output, "\n\n")

	usage, model := stream.Usage(), stream.Model()
	loop.session.LogRunUsage(usage, model)
	all := stream.AllMessages()
	if !answered(all, len(history)) {
		all = append(append(history, llm.UserMessage(prompt)), llm.AssistantMessage(answer.String()))
	}
	loop.session.LogNewMessages(all)
	loop.logger.Debug("turn complete",
		"session", loop.session.ID(),
		"model", model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)

	loop.footer()
	loop.session.CompressContextIfNeeded(turnContext)
	if turnContext.Err() != nil {
		return loop.interrupted(ctx, "compressing context")
	}
	return nil
}

// watchInterrupts returns a context that an interrupt cancels until
// stop is called. Stop also discards an interrupt that arrived too late
// to cancel anything, so it cannot end the loop at the next prompt.
func (loop *Loop) watchInterrupts(ctx context.Context) (context.Context, func()) {
	turnContext, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-loop.interrupts:
			cancel()
		case <-finished:
		}
	}()
	return turnContext, func() {
		close(finished)
		<-watcher
		cancel()
		select {
		case <-loop.interrupts:
		default:
		}
	}
}

// interrupted reports an interrupt during step and returns to the
// prompt, or returns ctx's error when the loop itself is ending.
func (loop *Loop) interrupted(ctx context.Context, step string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	fmt.Fprintf(loop.output, "\n%s\n\n", loop.renderer.Notice("Interrupted by user"))
	loop.logger.Info("turn interrupted", "session", loop.session.ID(), "step", step)
	return nil
}

// answered reports whether all holds an assistant message after the
// history it was seeded with.
func answered(all []llm.Message, seeded int) bool {
	for index := seeded; index < len(all); index++ {
		if all[index].Role == llm.RoleAssistant {
			return true
		}
	}
	return false
}

// failed reports a run that ended early. An interrupt prints a notice
// and logs nothing; any other failure is shown inline and logged.
func (loop *Loop) failed(ctx, turnContext context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if turnContext.Err() != nil {
		return loop.interrupted(ctx, "streaming answer")
	}

	message := err.Error()
	fmt.Fprintf(loop.output, "%s\n\n", loop.renderer.Error(message))
	loop.logger.Warn("agent run failed", "session", loop.session.ID(), "error", err)
	loop.session.LogError(message)
	loop.session.CompressContextIfNeeded(turnContext)
	if turnContext.Err() != nil {
		return loop.interrupted(ctx, "compressing context")
	}
	return nil
}

// footer prints the session's running usage under a rule.
func (loop *Loop) footer() {
	summary := ledger.Summary(loop.session.Costs().Total)
	if summary == "" {
		return
	}
	fmt.Fprintf(loop.output, "%s\n%s\n\n", loop.renderer.Rule(), loop.renderer.Faint(summary))
}

func (loop *Loop) welcome() {
	fmt.Fprintf(loop.output, "%s\n\n", loop.renderer.Panel("",
		loop.assistantName+" AI Assistant\n"+
			loop.renderer.Faint("Type your message, '/quit' to exit, or use ↑/↓ arrows for history")))
}

func (loop *Loop) showResumed() {
	events := loop.session.ConversationContext()
	metadata := loop.session.Metadata()
	fmt.Fprintf(loop.output, "%s\n\n", loop.renderer.Faint(
		fmt.Sprintf("Resuming %s: %s (%d messages)", metadata.SessionID, metadata.Title, metadata.MessageCount)))
	if err := loop.renderer.Conversation(loop.output, events); err != nil {
		loop.logger.Warn("rendering resumed conversation failed", "error", err)
	}
	if len(events) > 0 {
		fmt.Fprintf(loop.output, "%s\n\n", loop.renderer.Rule())
	}
}

func (loop *Loop) goodbye() {
	fmt.Fprintln(loop.output, loop.renderer.Notice("Goodbye!"))
}
