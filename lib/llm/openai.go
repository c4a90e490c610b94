// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIConfig configures an [OpenAI] provider.
type OpenAIConfig struct {
	// Name identifies the endpoint in logs and errors (e.g.,
	// "anthropic", "openrouter").
	Name string

	// BaseURL is the API root, without the trailing
	// "/chat/completions" (e.g., "https://api.openai.com/v1").
	BaseURL string

	// APIKey is sent as a bearer token. Empty means no Authorization
	// header, which suits local servers.
	APIKey string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// OpenAI implements [Provider] for the OpenAI Chat Completions wire
// format. This is spoken by OpenAI, OpenRouter, Anthropic's
// compatibility endpoint, and most local inference servers, so one
// adapter covers every configured endpoint.
type OpenAI struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(config OpenAIConfig) *OpenAI {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAI{
		name:       config.Name,
		endpoint:   strings.TrimRight(config.BaseURL, "/") + "/chat/completions",
		apiKey:     config.APIKey,
		httpClient: httpClient,
	}
}

// Name returns the configured endpoint name.
func (provider *OpenAI) Name() string {
	return provider.name
}

func (provider *OpenAI) prefix() string {
	return "llm/" + provider.name
}

func (provider *OpenAI) headers() map[string]string {
	if provider.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + provider.apiKey}
}

// Complete sends a non-streaming request and returns the full response.
func (provider *OpenAI) Complete(ctx context.Context, request Request) (*Response, error) {
	httpResponse, err := doProviderRequest(ctx, provider.httpClient, provider.endpoint,
		provider.headers(), buildOpenAIRequest(request, false), provider.prefix(), false)
	if err != nil {
		return nil, err
	}
	return decodeResponse[openaiResponse](httpResponse, provider.prefix())
}

// Stream sends a streaming request and returns an [EventStream].
func (provider *OpenAI) Stream(ctx context.Context, request Request) (*EventStream, error) {
	httpResponse, err := doProviderRequest(ctx, provider.httpClient, provider.endpoint,
		provider.headers(), buildOpenAIRequest(request, true), provider.prefix(), true)
	if err != nil {
		return nil, err
	}
	return newOpenAIEventStream(httpResponse.Body, provider.prefix()), nil
}

func buildOpenAIRequest(request Request, stream bool) openaiRequest {
	wireRequest := openaiRequest{
		Model:       request.Model,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
		Stop:        request.StopSequences,
	}
	if stream {
		wireRequest.Stream = true
		wireRequest.StreamOptions = &openaiStreamOptions{IncludeUsage: true}
	}

	if request.System != "" {
		wireRequest.Messages = append(wireRequest.Messages, openaiMessage{
			Role:    "system",
			Content: request.System,
		})
	}
	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, openaiMessage{
			Role:    string(message.Role),
			Content: message.Text(),
		})
	}
	for _, tool := range request.Tools {
		wireRequest.Tools = append(wireRequest.Tools, openaiTool{
			Type: "function",
			Function: openaiToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	return wireRequest
}

// newOpenAIEventStream parses the chat completions SSE stream. Text
// arrives as per-chunk deltas; the complete text block is emitted once
// finish_reason arrives, and usage arrives in a trailing chunk with an
// empty choices array (stream_options.include_usage).
func newOpenAIEventStream(body io.ReadCloser, prefix string) *EventStream {
	sseScanner := NewSSEScanner(body)

	var text strings.Builder
	var pending []StreamEvent
	var modelSet bool

	stream := NewEventStream(nil, body)
	stream.next = func() (StreamEvent, error) {
		if len(pending) > 0 {
			event := pending[0]
			pending = pending[1:]
			return event, nil
		}

		for sseScanner.Next() {
			data := sseScanner.Event().Data
			if data == "[DONE]" {
				return StreamEvent{Type: EventDone}, nil
			}

			var chunk openaiStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return StreamEvent{}, fmt.Errorf("%s: parsing stream chunk: %w", prefix, err)
			}
			if chunk.Error != nil && chunk.Error.Message != "" {
				return StreamEvent{
					Type:  EventError,
					Error: fmt.Errorf("%s: stream error: %s: %s", prefix, chunk.Error.Type, chunk.Error.Message),
				}, nil
			}

			if !modelSet && chunk.Model != "" {
				stream.SetModel(chunk.Model)
				modelSet = true
			}
			if chunk.Usage != nil {
				stream.SetUsage(chunk.Usage.toUsage())
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.FinishReason != nil {
				stream.SetStopReason(mapOpenAIFinishReason(*choice.FinishReason))
				if choice.Delta.Content != "" {
					text.WriteString(choice.Delta.Content)
					pending = append(pending, StreamEvent{Type: EventContentBlockDone, ContentBlock: TextBlock(text.String())})
					return StreamEvent{Type: EventTextDelta, Text: choice.Delta.Content}, nil
				}
				if text.Len() > 0 {
					return StreamEvent{Type: EventContentBlockDone, ContentBlock: TextBlock(text.String())}, nil
				}
				continue
			}
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				return StreamEvent{Type: EventTextDelta, Text: choice.Delta.Content}, nil
			}
		}
		if err := sseScanner.Err(); err != nil {
			return StreamEvent{}, fmt.Errorf("%s: reading SSE: %w", prefix, err)
		}
		return StreamEvent{}, io.EOF
	}
	return stream
}

// --- wire types ---

type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []openaiMessage      `json:"messages"`
	Tools         []openaiTool         `json:"tools,omitempty"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   *float64             `json:"temperature,omitempty"`
	Stop          []string             `json:"stop,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiTool struct {
	Type     string               `json:"type"`
	Function openaiToolDefinition `json:"function"`
}

type openaiToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openaiResponse struct {
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message struct {
		Content *string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens        int64 `json:"prompt_tokens"`
	CompletionTokens    int64 `json:"completion_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int64 `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
}

func (usage openaiUsage) toUsage() Usage {
	converted := Usage{
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
	}
	if usage.PromptTokensDetails != nil {
		converted.CacheReadTokens = usage.PromptTokensDetails.CachedTokens
	}
	return converted
}

type openaiStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (wireResponse *openaiResponse) toResponse() *Response {
	response := &Response{
		Model: wireResponse.Model,
		Usage: wireResponse.Usage.toUsage(),
	}
	if len(wireResponse.Choices) == 0 {
		return response
	}
	choice := wireResponse.Choices[0]
	response.StopReason = mapOpenAIFinishReason(choice.FinishReason)
	if choice.Message.Content != nil && *choice.Message.Content != "" {
		response.Content = append(response.Content, TextBlock(*choice.Message.Content))
	}
	return response
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopReasonEndTurn
	case "tool_calls":
		return StopReasonToolUse
	case "length":
		return StopReasonMaxTokens
	default:
		return StopReason(reason)
	}
}
