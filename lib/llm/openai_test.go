// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// openaiTestServer starts a test server and returns a provider whose
// base URL points at it.
func openaiTestServer(t *testing.T, handler http.Handler, apiKey string) *OpenAI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewOpenAI(OpenAIConfig{
		Name:       "openai",
		BaseURL:    server.URL + "/v1/",
		APIKey:     apiKey,
		HTTPClient: server.Client(),
	})
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", got)
		}

		var wireRequest struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Stream    bool   `json:"stream"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(request.Body).Decode(&wireRequest); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		if wireRequest.Model != "gpt-4o" {
			t.Errorf("model = %q, want gpt-4o", wireRequest.Model)
		}
		if wireRequest.MaxTokens != 1024 {
			t.Errorf("max_tokens = %d, want 1024", wireRequest.MaxTokens)
		}
		if wireRequest.Stream {
			t.Error("stream should be false for Complete")
		}
		if len(wireRequest.Messages) != 3 {
			t.Errorf("messages = %d, want 3 (system, user, assistant)", len(wireRequest.Messages))
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		if wireRequest.Messages[0].Role != "system" || wireRequest.Messages[0].Content != "You are helpful." {
			t.Errorf("messages[0] = %+v, want system prompt", wireRequest.Messages[0])
		}
		if wireRequest.Messages[2].Role != "assistant" || wireRequest.Messages[2].Content != "Hi there" {
			t.Errorf("messages[2] = %+v, want assistant turn", wireRequest.Messages[2])
		}

		writer.Header().Set("Content-Type", "application/json")
		fmt.Fprint(writer, `{
			"model": "gpt-4o-2024-11-20",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 25, "completion_tokens": 3, "prompt_tokens_details": {"cached_tokens": 5}}
		}`)
	})

	provider := openaiTestServer(t, mux, "sk-test")
	response, err := provider.Complete(context.Background(), Request{
		Model:     "gpt-4o",
		System:    "You are helpful.",
		MaxTokens: 1024,
		Messages:  []Message{UserMessage("Hello"), AssistantMessage("Hi there")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if text := response.TextContent(); text != "Hello!" {
		t.Errorf("TextContent = %q, want Hello!", text)
	}
	if response.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q, want end_turn", response.StopReason)
	}
	if response.Model != "gpt-4o-2024-11-20" {
		t.Errorf("Model = %q", response.Model)
	}
	want := Usage{InputTokens: 25, OutputTokens: 3, CacheReadTokens: 5}
	if response.Usage != want {
		t.Errorf("Usage = %+v, want %+v", response.Usage, want)
	}
}

func TestOpenAINoKeyOmitsAuthorization(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want empty", got)
		}
		fmt.Fprint(writer, `{"model":"local","choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`)
	})

	provider := openaiTestServer(t, mux, "")
	if _, err := provider.Complete(context.Background(), Request{Model: "local"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestOpenAIStreamText(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		var wireRequest struct {
			Stream        bool `json:"stream"`
			StreamOptions *struct {
				IncludeUsage bool `json:"include_usage"`
			} `json:"stream_options"`
		}
		body, _ := io.ReadAll(request.Body)
		json.Unmarshal(body, &wireRequest)
		if !wireRequest.Stream {
			t.Error("stream should be true for Stream()")
		}
		if wireRequest.StreamOptions == nil || !wireRequest.StreamOptions.IncludeUsage {
			t.Error("stream_options.include_usage should be true")
		}

		writer.Header().Set("Content-Type", "text/event-stream")
		flusher := writer.(http.Flusher)
		for _, event := range []string{
			`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hello"},"finish_reason":null}]}`,
			`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{"content":" world"},"finish_reason":null}]}`,
			`data: {"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`data: {"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":50,"completion_tokens":5,"prompt_tokens_details":{"cached_tokens":10}}}`,
			`data: [DONE]`,
		} {
			fmt.Fprint(writer, event+"\n\n")
			flusher.Flush()
		}
	})

	provider := openaiTestServer(t, mux, "sk-test")
	stream, err := provider.Stream(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []Message{UserMessage("Hello")},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var deltas []string
	var blocks, done int
	for {
		event, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		switch event.Type {
		case EventTextDelta:
			deltas = append(deltas, event.Text)
		case EventContentBlockDone:
			blocks++
		case EventDone:
			done++
		case EventError:
			t.Fatalf("stream error: %v", event.Error)
		}
	}

	if len(deltas) != 2 || deltas[0] != "Hello" || deltas[1] != " world" {
		t.Errorf("deltas = %q, want [Hello, ' world']", deltas)
	}
	if blocks != 1 {
		t.Errorf("content blocks = %d, want 1", blocks)
	}
	if done != 1 {
		t.Errorf("done events = %d, want 1", done)
	}

	response := stream.Response()
	if text := response.TextContent(); text != "Hello world" {
		t.Errorf("TextContent = %q, want 'Hello world'", text)
	}
	if response.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q", response.StopReason)
	}
	want := Usage{InputTokens: 50, OutputTokens: 5, CacheReadTokens: 10}
	if response.Usage != want {
		t.Errorf("Usage = %+v, want %+v", response.Usage, want)
	}
}

func TestOpenAIStreamErrorChunk(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(writer, `data: {"error":{"type":"server_error","message":"boom"}}`+"\n\n")
	})

	provider := openaiTestServer(t, mux, "sk-test")
	stream, err := provider.Stream(context.Background(), Request{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	event, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if event.Type != EventError || event.Error == nil {
		t.Fatalf("event = %+v, want EventError", event)
	}
}

func TestOpenAIHTTPError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(writer, `{"error":{"type":"server_error","message":"Service unavailable"}}`)
	})

	provider := openaiTestServer(t, mux, "sk-test")
	_, err := provider.Stream(context.Background(), Request{Model: "gpt-4o"})

	var providerError *ProviderError
	if !errors.As(err, &providerError) {
		t.Fatalf("error = %v (%T), want *ProviderError", err, err)
	}
	if providerError.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", providerError.StatusCode)
	}
	if !providerError.IsServerError() {
		t.Error("IsServerError() = false, want true")
	}
	if providerError.Message != "Service unavailable" {
		t.Errorf("Message = %q", providerError.Message)
	}
}
