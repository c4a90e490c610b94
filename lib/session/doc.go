// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the lifecycle of a chat session.
//
// A [Manager] is the chat loop's single point of contact. It appends
// every exchange to the session's event log, books usage into the cost
// ledger, keeps the context compressor's estimate current, and
// replaces old turns with a summarized narrative when the conversation
// outgrows its context window. Per turn the loop calls, in order:
//
//	manager.LogUserMessage(prompt)
//	manager.CompressContextIfNeeded(ctx)
//	history := manager.MessageHistory()
//	stream, err := agent.RunStream(ctx, prompt, history)
//	// ... drain the stream ...
//	manager.LogRunUsage(stream.Usage(), stream.Model())
//	manager.LogNewMessages(stream.AllMessages())
//	manager.CompressContextIfNeeded(ctx)
//
// A session directory is claimed when its first user message is
// logged, so starting and quitting without typing leaves nothing
// behind. The directory name is the UTC creation time
// (20060102-150405), with -2, -3, ... appended on collision.
//
// Persistence failures never reach the chat loop: they are logged at
// warn level and the in-memory state moves on. The event log on disk
// remains the source of truth, and [Resume] rebuilds a Manager by
// replaying it. [List] enumerates sessions newest first.
package session
