// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a provider-agnostic interface for Large Language
// Model APIs with streaming support.
//
// The primary abstraction is [Provider], which supports both blocking
// completion and streaming responses. [OpenAI] speaks the Chat
// Completions wire format, which covers every endpoint parley talks to;
// [Fallback] layers an ordered list of endpoints over it so a rate
// limited or unavailable primary hands over to the next.
//
// Streaming uses Server-Sent Events, parsed by [SSEScanner]. The
// [EventStream] type yields [StreamEvent] values as they arrive while
// accumulating the complete [Response] internally.
package llm
