// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"

	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/llm"
	llmcontext "github.com/bureau-foundation/parley/lib/llm/context"
)

// Agent answers user prompts. history is the prior conversation the
// answer should continue from, oldest first; it never includes prompt.
type Agent interface {
	// Run blocks until the full answer is available.
	Run(ctx context.Context, prompt string, history []llm.Message) (Result, error)

	// RunStream starts an answer and returns as soon as the provider
	// accepts the request. The caller must Close the stream.
	RunStream(ctx context.Context, prompt string, history []llm.Message) (Stream, error)

	SystemPrompt() string
	Model() string
	Tools() []llm.ToolDefinition
}

// Stream yields an answer incrementally.
type Stream interface {
	// Next returns the next text delta, or io.EOF once the answer is
	// complete. Any other error ends the stream.
	Next() (string, error)

	// Usage, Model, and AllMessages are meaningful once Next has
	// returned io.EOF. AllMessages is the history the run was given
	// followed by the prompt and the answer.
	Usage() ledger.Usage
	Model() string
	AllMessages() []llm.Message

	Close() error
}

// Result is a completed non-streaming run.
type Result struct {
	Text        string
	Usage       ledger.Usage
	Model       string
	AllMessages []llm.Message
}

// Config fully specifies an agent. It is a plain value: deriving a
// variant copies it.
type Config struct {
	// Name identifies the profile the config came from.
	Name string

	// AssistantName labels the agent's replies in the terminal.
	AssistantName string

	SystemPrompt string

	// Model is the requested model. A [llm.Fallback] provider replaces
	// it per endpoint.
	Model string

	MaxTokens   int
	Temperature *float64
	Tools       []llm.ToolDefinition
}

// WithCompressedContext returns a copy of config whose system prompt
// carries narrative under the "Previous Session Context" header. An
// empty narrative returns config unchanged.
func (config Config) WithCompressedContext(narrative string) Config {
	config.SystemPrompt = llmcontext.WithNarrative(config.SystemPrompt, narrative)
	config.Tools = append([]llm.ToolDefinition(nil), config.Tools...)
	return config
}

// usageFromLLM converts provider usage for one request into a ledger
// record.
func usageFromLLM(usage llm.Usage) ledger.Usage {
	return ledger.Usage{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CachedTokens: usage.CacheReadTokens,
		Requests:     1,
	}
}
