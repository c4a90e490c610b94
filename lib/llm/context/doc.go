// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package context keeps a conversation within its model's context
// window by summarization.
//
// [Compressor] tracks the tokens a conversation has consumed since its
// last compression. Once the estimate passes a threshold fraction of
// the window, the caller hands it the turns since that compression; a
// [Summarizer] condenses them, together with any earlier narrative,
// into a single narrative. The original turns stay in the session log
// but are no longer sent to the model. Instead the narrative rides in
// the system prompt under "Previous Session Context:".
//
// Token estimation is handled by the [TokenEstimator] interface.
// [CharEstimator] starts from a character ratio and calibrates it from
// actual provider usage. [ContextWindowForModel] supplies window sizes
// for well-known models when configuration does not.
package context
