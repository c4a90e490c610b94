// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/llm"
)

// LLMAgent is an [Agent] backed by an [llm.Provider]. Each run is one
// request: the system prompt, the history, and the prompt as the final
// user message.
type LLMAgent struct {
	provider llm.Provider
	config   Config
	logger   *slog.Logger
}

// NewLLMAgent returns an agent that sends config's settings to
// provider. A nil logger discards.
func NewLLMAgent(provider llm.Provider, config Config, logger *slog.Logger) *LLMAgent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LLMAgent{provider: provider, config: config, logger: logger}
}

// Config returns the configuration the agent was built from.
func (agent *LLMAgent) Config() Config { return agent.config }

func (agent *LLMAgent) SystemPrompt() string { return agent.config.SystemPrompt }

func (agent *LLMAgent) Model() string { return agent.config.Model }

func (agent *LLMAgent) Tools() []llm.ToolDefinition { return agent.config.Tools }

func (agent *LLMAgent) request(prompt string, history []llm.Message) llm.Request {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.UserMessage(prompt))
	return llm.Request{
		Model:       agent.config.Model,
		System:      agent.config.SystemPrompt,
		Messages:    messages,
		Tools:       agent.config.Tools,
		MaxTokens:   agent.config.MaxTokens,
		Temperature: agent.config.Temperature,
	}
}

// Run sends one request and waits for the whole answer.
func (agent *LLMAgent) Run(ctx context.Context, prompt string, history []llm.Message) (Result, error) {
	request := agent.request(prompt, history)
	response, err := agent.provider.Complete(ctx, request)
	if err != nil {
		return Result{}, fmt.Errorf("agent: %w", err)
	}
	text := response.TextContent()
	model := response.Model
	if model == "" {
		model = agent.config.Model
	}
	agent.logger.Debug("run complete",
		"model", model,
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens,
	)
	return Result{
		Text:        text,
		Usage:       usageFromLLM(response.Usage),
		Model:       model,
		AllMessages: append(request.Messages, llm.AssistantMessage(text)),
	}, nil
}

// RunStream starts a streaming request.
func (agent *LLMAgent) RunStream(ctx context.Context, prompt string, history []llm.Message) (Stream, error) {
	request := agent.request(prompt, history)
	events, err := agent.provider.Stream(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	return &llmStream{
		events:   events,
		sent:     request.Messages,
		fallback: agent.config.Model,
		logger:   agent.logger,
	}, nil
}

// llmStream adapts an [llm.EventStream] to [Stream], keeping only text
// deltas and buffering them for the final message.
type llmStream struct {
	events   *llm.EventStream
	sent     []llm.Message
	fallback string
	logger   *slog.Logger

	text     strings.Builder
	done     bool
	response llm.Response
}

func (stream *llmStream) Next() (string, error) {
	if stream.done {
		return "", io.EOF
	}
	for {
		event, err := stream.events.Next()
		if errors.Is(err, io.EOF) {
			stream.done = true
			stream.response = stream.events.Response()
			stream.logger.Debug("stream complete",
				"model", stream.Model(),
				"stop_reason", stream.response.StopReason,
				"input_tokens", stream.response.Usage.InputTokens,
				"output_tokens", stream.response.Usage.OutputTokens,
			)
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("agent: %w", err)
		}
		switch event.Type {
		case llm.EventTextDelta:
			stream.text.WriteString(event.Text)
			return event.Text, nil
		case llm.EventError:
			return "", fmt.Errorf("agent: %w", event.Error)
		}
	}
}

func (stream *llmStream) Usage() ledger.Usage {
	return usageFromLLM(stream.response.Usage)
}

func (stream *llmStream) Model() string {
	if stream.response.Model != "" {
		return stream.response.Model
	}
	return stream.fallback
}

// AllMessages returns the messages sent plus the streamed answer.
// Before the stream completes the answer is whatever has arrived.
func (stream *llmStream) AllMessages() []llm.Message {
	text := stream.text.String()
	if text == "" {
		text = stream.response.TextContent()
	}
	all := make([]llm.Message, 0, len(stream.sent)+1)
	all = append(all, stream.sent...)
	return append(all, llm.AssistantMessage(text))
}

func (stream *llmStream) Close() error {
	return stream.events.Close()
}
