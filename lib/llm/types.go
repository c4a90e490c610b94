// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a [Message].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType discriminates the variants of [ContentBlock].
type ContentType string

const (
	ContentText ContentType = "text"
)

// ContentBlock is one piece of a message body. Only text blocks are
// produced and consumed by the chat front-end; the type field leaves
// room for richer content without changing the message shape.
type ContentBlock struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// Message is a single turn in a conversation, in provider-agnostic
// form. Adapters translate messages to and from each vendor's wire
// representation.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UserMessage returns a user message holding a single text block.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage returns an assistant message holding a single text
// block.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// Text concatenates the text blocks of the message.
func (message Message) Text() string {
	var builder strings.Builder
	for _, block := range message.Content {
		if block.Type == ContentText {
			builder.WriteString(block.Text)
		}
	}
	return builder.String()
}

// ToolDefinition describes a tool the model may call. Tools are
// forwarded to the provider as-is.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model         string
	System        string
	Messages      []Message
	Tools         []ToolDefinition
	MaxTokens     int
	Temperature   *float64
	StopSequences []string
}

// StopReason reports why the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonToolUse   StopReason = "tool_use"
)

// Usage holds the token counters reported by a provider for one
// request.
type Usage struct {
	InputTokens     int64 `json:"input_tokens"`
	OutputTokens    int64 `json:"output_tokens"`
	CacheReadTokens int64 `json:"cache_read_tokens,omitempty"`
}

// Add returns the element-wise sum of two usage values.
func (usage Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:     usage.InputTokens + other.InputTokens,
		OutputTokens:    usage.OutputTokens + other.OutputTokens,
		CacheReadTokens: usage.CacheReadTokens + other.CacheReadTokens,
	}
}

// Response is a complete model response.
type Response struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
	Model      string
}

// TextContent concatenates all text blocks in the response.
func (response Response) TextContent() string {
	return Message{Content: response.Content}.Text()
}

// StreamEventType discriminates [StreamEvent] values.
type StreamEventType string

const (
	EventTextDelta        StreamEventType = "text_delta"
	EventContentBlockDone StreamEventType = "content_block_done"
	EventDone             StreamEventType = "done"
	EventError            StreamEventType = "error"
)

// StreamEvent is one event from an [EventStream].
type StreamEvent struct {
	Type StreamEventType

	// Text is set for EventTextDelta.
	Text string

	// ContentBlock is set for EventContentBlockDone.
	ContentBlock ContentBlock

	// Error is set for EventError.
	Error error
}
