// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"fmt"
	"strings"
	"unicode"
)

// isCommand reports whether a trimmed line is meant for the loop
// rather than the agent. A command is a single slash-word; a line that
// merely starts with a slash, such as a path followed by a question,
// goes to the agent. Bare "quit", "exit" and "help" count so a user
// who forgets the slash is not answered by the model.
func isCommand(line string) bool {
	if strings.HasPrefix(line, "/") {
		return !strings.ContainsFunc(line, unicode.IsSpace)
	}
	switch strings.ToLower(line) {
	case "quit", "exit", "help":
		return true
	}
	return false
}

// command runs a loop command and reports whether the loop continues.
func (loop *Loop) command(line string) bool {
	switch strings.ToLower(line) {
	case "/quit", "/exit", "quit", "exit":
		loop.goodbye()
		return false
	case "/help", "help":
		fmt.Fprintf(loop.output, "%s\n\n", loop.renderer.Panel("Help", loop.helpText()))
	default:
		fmt.Fprintf(loop.output, "%s\n\n", loop.renderer.Notice(
			fmt.Sprintf("Unknown command %s. Type /help for the list of commands.", line)))
	}
	return true
}

func (loop *Loop) helpText() string {
	return strings.Join([]string{
		"Available commands:",
		"- /quit, /exit: Exit the chat",
		"- /help: Show this help message",
		"- Any other text: Send message to " + loop.assistantName + " AI",
	}, "\n")
}
