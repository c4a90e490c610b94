// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent defines the collaborators the chat loop and session
// manager drive: the [Agent] that answers user prompts, the
// [Summarizer] that condenses old turns into a narrative, and the
// [Titler] that names a session after its first message.
//
// [LLMAgent] implements Agent over any [llm.Provider], usually an
// [llm.Fallback] across the configured endpoints. An agent is built
// from a [Config] value; [Config.WithCompressedContext] derives the
// configuration for a compressed session without mutating the base.
//
// Profiles are JSONC files naming the assistant, its system prompt,
// and its sampling settings. [LoadProfile] reads one; [DefaultProfile]
// is used when none is configured.
package agent
