// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionindex

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/parley/lib/bm25"
	"github.com/bureau-foundation/parley/lib/session"
	"github.com/bureau-foundation/parley/lib/sessionlog"
)

// Field weights for content search. A title says what a session is
// about more reliably than any one answer does.
const (
	titleWeight     = 4
	narrativeWeight = 2
	promptWeight    = 2
	answerWeight    = 1
)

// SearchContent ranks summaries by how well their conversations match
// query, best first, keeping at most limit. Titles, prompts, answers
// and compression narratives are all searched. A session whose event
// log cannot be read is ranked on its title alone.
//
// The catalog holds no conversation text, so this reads every event
// log; it is meant for a command, not for a loop.
func SearchContent(summaries []session.Summary, query string, limit int, logger *slog.Logger) []session.Summary {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	documents := make([]bm25.Document, len(summaries))
	byID := make(map[string]session.Summary, len(summaries))
	for position, summary := range summaries {
		byID[summary.ID] = summary
		documents[position] = contentDocument(summary, logger)
	}

	results := bm25.New(documents).Search(query, limit)
	matches := make([]session.Summary, len(results))
	for position, result := range results {
		matches[position] = byID[result.ID]
	}
	return matches
}

func contentDocument(summary session.Summary, logger *slog.Logger) bm25.Document {
	document := bm25.Document{
		ID:     summary.ID,
		Fields: []bm25.Field{{Text: summary.Title, Weight: titleWeight}},
	}
	events, _, err := sessionlog.ReadEvents(filepath.Join(summary.Directory, sessionlog.EventsFile))
	if err != nil {
		logger.Warn("searching title only, event log unreadable", "session", summary.ID, "error", err)
		return document
	}

	var prompts, answers, narratives strings.Builder
	for _, event := range events {
		var target *strings.Builder
		switch event.Kind {
		case sessionlog.KindUserMessage:
			target = &prompts
		case sessionlog.KindAssistantResponse:
			target = &answers
		case sessionlog.KindContextCompression:
			target = &narratives
		default:
			continue
		}
		target.WriteString(event.Content)
		target.WriteByte('\n')
	}
	document.Fields = append(document.Fields,
		bm25.Field{Text: prompts.String(), Weight: promptWeight},
		bm25.Field{Text: answers.String(), Weight: answerWeight},
		bm25.Field{Text: narratives.String(), Weight: narrativeWeight},
	)
	return document
}
