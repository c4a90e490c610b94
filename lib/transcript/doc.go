// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript renders chat text for the terminal.
//
// Assistant answers are markdown. The renderer parses them with
// goldmark and walks the AST directly, accumulating inline text per
// block and word-wrapping it when the block closes, so hard-wrapped
// source reflows at any width. Fenced code is highlighted with chroma.
// A fenced block tagged markdown is rendered recursively inside a
// bordered panel rather than shown as source, since models often wrap
// whole documents that way.
//
// [Renderer.Conversation] prints a session's displayable events with
// role labels; the chat loop uses it to replay a resumed session and
// "parley sessions show" uses it to print one.
package transcript
