// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/bureau-foundation/parley/lib/clock"
)

// FileName is the history file's name under the data root.
const FileName = "history.jsonl"

// entryType marks the only record kind the file holds.
const entryType = "user_prompt"

// Entry is one line of history.jsonl. ModelRequest repeats the prompt
// as a single-part request so other tools that read the file as a
// provider transcript see a well-formed record.
type Entry struct {
	Timestamp    time.Time    `json:"timestamp"`
	Type         string       `json:"type"`
	Content      string       `json:"content"`
	ModelRequest ModelRequest `json:"model_request"`
}

// ModelRequest is the request envelope carried by an [Entry].
type ModelRequest struct {
	Kind  string        `json:"kind"`
	Parts []RequestPart `json:"parts"`
}

// RequestPart is one part of a [ModelRequest].
type RequestPart struct {
	PartKind  string    `json:"part_kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// commands are never recorded: browsing back to "quit" is noise.
var commands = map[string]bool{
	"help": true, "/help": true,
	"quit": true, "/quit": true,
	"exit": true, "/exit": true,
}

// History is the in-memory prompt list backed by history.jsonl. It is
// safe for concurrent use.
type History struct {
	path   string
	clock  clock.Clock
	logger *slog.Logger

	mutex   sync.Mutex
	entries []string
}

var _ term.History = (*History)(nil)

// Open loads the history file under root. A missing file is an empty
// history; malformed lines are skipped.
func Open(root string, clk clock.Clock, logger *slog.Logger) (*History, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	history := &History{
		path:   filepath.Join(root, FileName),
		clock:  clk,
		logger: logger,
	}

	data, err := os.ReadFile(history.path)
	if errors.Is(err, fs.ErrNotExist) {
		return history, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: reading %s: %w", history.path, err)
	}

	skipped := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// Only type and content matter on load; older files carry
		// model_request in other shapes.
		var entry struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(line, &entry); err != nil || entry.Type != entryType || entry.Content == "" {
			skipped++
			continue
		}
		history.entries = append(history.entries, entry.Content)
	}
	if skipped > 0 {
		logger.Warn("skipped malformed history lines", "path", history.path, "skipped", skipped)
	}
	return history, nil
}

// Path returns the history file path.
func (history *History) Path() string {
	return history.path
}

// Add records a sent prompt. Blank input and the chat commands are
// ignored. A failed write is logged; the prompt stays in memory.
func (history *History) Add(prompt string) {
	if strings.TrimSpace(prompt) == "" || commands[strings.ToLower(strings.TrimSpace(prompt))] {
		return
	}
	now := history.clock.Now().UTC()
	entry := Entry{
		Timestamp: now,
		Type:      entryType,
		Content:   prompt,
		ModelRequest: ModelRequest{
			Kind: "request",
			Parts: []RequestPart{{
				PartKind:  entryType,
				Content:   prompt,
				Timestamp: now,
			}},
		},
	}

	history.mutex.Lock()
	defer history.mutex.Unlock()
	history.entries = append(history.entries, prompt)
	if err := history.appendLocked(entry); err != nil {
		history.logger.Warn("appending to prompt history failed", "path", history.path, "error", err)
	}
}

func (history *History) appendLocked(entry Entry) error {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(entry); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(history.path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(history.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := file.Write(buffer.Bytes()); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Len returns the number of entries.
func (history *History) Len() int {
	history.mutex.Lock()
	defer history.mutex.Unlock()
	return len(history.entries)
}

// At returns an entry counting back from the newest: At(0) is the most
// recent prompt. It panics when index is out of range, as the
// term.History contract allows.
func (history *History) At(index int) string {
	history.mutex.Lock()
	defer history.mutex.Unlock()
	return history.entries[len(history.entries)-1-index]
}

// Entries returns the prompts oldest first.
func (history *History) Entries() []string {
	history.mutex.Lock()
	defer history.mutex.Unlock()
	return append([]string(nil), history.entries...)
}
