// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/bureau-foundation/parley/lib/llm"
	"github.com/bureau-foundation/parley/lib/sessionlog"
)

// historySince rebuilds the provider history from the events after
// the compression at index lastCompression (-1 for none).
//
// Only answered prompts are kept: a user message followed by an
// assistant response becomes a pair, while one followed by an error,
// another user message, or nothing is dropped. A compression can land
// between a prompt and its answer (the check runs after the prompt is
// logged), so a prompt left unanswered just before the compression
// pairs with the first answer after it. Consecutive answers to one
// prompt are joined into a single assistant message.
func historySince(events []sessionlog.Event, lastCompression int) []llm.Message {
	var pending *string
	if lastCompression >= 0 {
	carry:
		for index := lastCompression - 1; index >= 0; index-- {
			switch events[index].Kind {
			case sessionlog.KindUserMessage:
				content := events[index].Content
				pending = &content
				break carry
			case sessionlog.KindAssistantResponse, sessionlog.KindError:
				break carry
			}
		}
	}

	var history []llm.Message
	answered := false
	for _, event := range events[lastCompression+1:] {
		switch event.Kind {
		case sessionlog.KindUserMessage:
			content := event.Content
			pending = &content
			answered = false
		case sessionlog.KindAssistantResponse:
			switch {
			case pending != nil:
				history = append(history, llm.UserMessage(*pending), llm.AssistantMessage(event.Content))
				pending = nil
				answered = true
			case answered:
				last := &history[len(history)-1]
				*last = llm.AssistantMessage(last.Text() + "\n\n" + event.Content)
			}
		case sessionlog.KindError:
			pending = nil
			answered = false
		}
	}
	return history
}

// displayable filters events to what a transcript shows.
func displayable(events []sessionlog.Event) []sessionlog.Event {
	var shown []sessionlog.Event
	for _, event := range events {
		switch event.Kind {
		case sessionlog.KindUserMessage, sessionlog.KindAssistantResponse, sessionlog.KindError:
			shown = append(shown, event)
		}
	}
	return shown
}

// countMessages counts the events metadata's message_count covers.
func countMessages(events []sessionlog.Event) int {
	return len(displayable(events))
}
