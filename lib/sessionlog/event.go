// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"time"

	"github.com/bureau-foundation/parley/lib/ledger"
)

// Kind identifies what an [Event] records.
type Kind string

const (
	// KindSystemPrompt records the system prompt in effect when the
	// session started or resumed.
	KindSystemPrompt Kind = "system_prompt"

	// KindUserMessage records a line the user sent to the agent.
	KindUserMessage Kind = "user_message"

	// KindAssistantResponse records the agent's complete reply to a
	// user message.
	KindAssistantResponse Kind = "assistant_response"

	// KindContextCompression records a narrative that replaces every
	// turn logged before it. The latest compression event wins.
	KindContextCompression Kind = "context_compression"

	// KindError records a failed agent run. It takes the place of the
	// assistant response for its turn.
	KindError Kind = "error"
)

// Valid reports whether kind is one of the known event kinds.
func (kind Kind) Valid() bool {
	switch kind {
	case KindSystemPrompt, KindUserMessage, KindAssistantResponse,
		KindContextCompression, KindError:
		return true
	}
	return false
}

// Event is one line of a session's events.jsonl. Events are appended
// in order and never rewritten; the log is the source of truth for a
// session's conversation.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"type"`
	Content   string    `json:"content"`

	// Model is the model that produced an assistant response.
	Model string `json:"model,omitempty"`

	// Usage is the token accounting of the run that produced an
	// assistant response, when the agent reported it.
	Usage *ledger.Usage `json:"usage,omitempty"`

	// Checkpoint is the content hash of the archived turns a
	// compression replaced, and CheckpointCompression the codec they
	// are stored with.
	Checkpoint            string `json:"checkpoint,omitempty"`
	CheckpointCompression string `json:"checkpoint_compression,omitempty"`

	// ReplacedTurns counts the messages a compression summarized.
	ReplacedTurns int `json:"replaced_turns,omitempty"`
}

// Metadata is the whole-record summary kept in metadata.json. It is
// rewritten on every change; the event log remains authoritative for
// conversation content.
type Metadata struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// MessageCount counts user messages, assistant responses, and
	// errors.
	MessageCount int `json:"message_count"`

	Compressed        bool   `json:"compressed"`
	CompressedContext string `json:"compressed_context,omitempty"`
	CompressionCount  int    `json:"compression_count,omitempty"`

	// TokensSinceCompression is the provider-reported usage booked
	// after the latest compression. It seeds the compressor on resume.
	TokensSinceCompression int64 `json:"tokens_since_compression"`

	ContextWindow int    `json:"context_window"`
	Model         string `json:"model,omitempty"`

	Costs ledger.SessionCosts `json:"costs"`
}
