// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/parley/lib/llm"
)

// summaryMaxTokens bounds the narrative a summarizer asks for.
const summaryMaxTokens = 2048

// Summarizer condenses conversation turns through a provider. It
// satisfies the compressor's summarizer contract.
type Summarizer struct {
	provider  llm.Provider
	model     string
	maxTokens int
}

// NewSummarizer returns a Summarizer that asks model on provider.
func NewSummarizer(provider llm.Provider, model string) *Summarizer {
	return &Summarizer{provider: provider, model: model, maxTokens: summaryMaxTokens}
}

// Summarize renders turns as a labeled transcript and asks for a
// narrative. The transcript goes in a single user message so the model
// summarizes it instead of continuing it.
func (summarizer *Summarizer) Summarize(ctx context.Context, turns []llm.Message) (string, error) {
	if len(turns) == 0 {
		return "", errors.New("agent: no turns to summarize")
	}
	response, err := summarizer.provider.Complete(ctx, llm.Request{
		Model:     summarizer.model,
		System:    summarizerSystemPrompt,
		Messages:  []llm.Message{llm.UserMessage(renderTranscript(turns))},
		MaxTokens: summarizer.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("agent: summarizing: %w", err)
	}
	narrative := strings.TrimSpace(response.TextContent())
	if narrative == "" {
		return "", errors.New("agent: summarizer returned no text")
	}
	return narrative, nil
}

func renderTranscript(turns []llm.Message) string {
	var builder strings.Builder
	for index, turn := range turns {
		if index > 0 {
			builder.WriteString("\n\n")
		}
		switch turn.Role {
		case llm.RoleAssistant:
			builder.WriteString("Assistant: ")
		default:
			builder.WriteString("User: ")
		}
		builder.WriteString(turn.Text())
	}
	return builder.String()
}
