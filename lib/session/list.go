// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/sessionlog"
)

// IDLayout is the time layout session IDs are formatted with, in UTC.
const IDLayout = "20060102-150405"

// ErrNotFound is returned for a session ID with no directory.
var ErrNotFound = errors.New("session not found")

// SessionsDirectory returns the directory holding every session.
func SessionsDirectory(root string) string {
	return filepath.Join(root, "sessions")
}

// Directory returns the directory of session id.
func Directory(root, id string) string {
	return filepath.Join(SessionsDirectory(root), id)
}

// CheckpointDirectory returns where a session directory keeps its
// compression checkpoints.
func CheckpointDirectory(sessionDirectory string) string {
	return filepath.Join(sessionDirectory, "checkpoints")
}

// ValidateID rejects IDs that are not a single path element.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid session ID %q", id)
	}
	return nil
}

// allocate claims a fresh session directory named after now.
func allocate(root string, now time.Time) (id, directory string, err error) {
	return Claim(root, now.UTC().Format(IDLayout))
}

// Claim creates the directory of session base under root, or of
// base-2, base-3 and so on when it is taken. The directory is created
// with Mkdir, so two processes claiming the same name get different
// IDs.
func Claim(root, base string) (id, directory string, err error) {
	if err := ValidateID(base); err != nil {
		return "", "", err
	}
	parent := SessionsDirectory(root)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", "", fmt.Errorf("session: creating %s: %w", parent, err)
	}
	for attempt := 1; attempt <= 1000; attempt++ {
		id = base
		if attempt > 1 {
			id = base + "-" + strconv.Itoa(attempt)
		}
		directory = filepath.Join(parent, id)
		err := os.Mkdir(directory, 0o755)
		if err == nil {
			return id, directory, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("session: creating %s: %w", directory, err)
		}
	}
	return "", "", fmt.Errorf("session: no free ID for %s", base)
}

// Resume rebuilds the Manager of session id from its log and metadata.
// New events append after the existing ones. Metadata that is missing
// or unreadable is reconstructed by replaying the log.
func Resume(id string, options Options) (*Manager, error) {
	if err := options.setDefaults(); err != nil {
		return nil, err
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	directory := Directory(options.Root, id)
	if info, err := os.Stat(directory); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	store, err := sessionlog.Open(directory, options.Clock)
	if err != nil {
		return nil, err
	}
	snapshot, err := store.Load()
	if err != nil {
		if len(snapshot.Events) == 0 && !errors.Is(err, sessionlog.ErrMetadata) {
			return nil, err
		}
		options.Logger.Warn("session metadata unreadable, rebuilding from the event log",
			"session", id,
			"error", err,
		)
		snapshot.HasMetadata = false
	}
	if snapshot.Skipped > 0 {
		options.Logger.Warn("skipped unreadable session events",
			"session", id,
			"skipped", snapshot.Skipped,
		)
	}

	metadata := snapshot.Metadata
	if !snapshot.HasMetadata {
		metadata = replayMetadata(id, directory, snapshot, options.Prices)
	}
	metadata.SessionID = id
	metadata.MessageCount = countMessages(snapshot.Events)

	window := contextWindow(options.ContextWindow, metadata.ContextWindow, modelOrDefault(options.Model, metadata.Model))
	manager, err := newManager(options, window)
	if err != nil {
		return nil, err
	}
	metadata.ContextWindow = window
	if metadata.Model == "" {
		metadata.Model = options.Model
	}

	manager.store = store
	manager.metadata = metadata
	manager.events = snapshot.Events
	manager.lastCompression = snapshot.LastCompression
	for _, event := range snapshot.Events {
		if event.Kind == sessionlog.KindUserMessage {
			manager.titleStarted = true
		}
		if event.Kind == sessionlog.KindSystemPrompt {
			manager.systemPrompt = event.Content
		}
	}
	manager.compressor.Restore(snapshot.Narrative, metadata.TokensSinceCompression)
	manager.metadata.Compressed = snapshot.Narrative != ""
	manager.metadata.CompressedContext = snapshot.Narrative

	options.Logger.Info("session resumed",
		"session", id,
		"events", len(snapshot.Events),
		"compressed", snapshot.Narrative != "",
	)
	return manager, nil
}

func modelOrDefault(configured, recorded string) string {
	if configured != "" {
		return configured
	}
	return recorded
}

// replayMetadata reconstructs a summary record from the event log.
func replayMetadata(id, directory string, snapshot sessionlog.Snapshot, prices *ledger.PriceTable) sessionlog.Metadata {
	metadata := sessionlog.Metadata{SessionID: id, Title: PlaceholderTitle}
	if len(snapshot.Events) > 0 {
		metadata.CreatedAt = snapshot.Events[0].Timestamp
		metadata.UpdatedAt = snapshot.Events[len(snapshot.Events)-1].Timestamp
	} else if info, err := os.Stat(directory); err == nil {
		metadata.CreatedAt = info.ModTime().UTC()
		metadata.UpdatedAt = metadata.CreatedAt
	}
	for index, event := range snapshot.Events {
		switch event.Kind {
		case sessionlog.KindAssistantResponse:
			if event.Usage != nil {
				metadata.Costs.Add(prices.Calculate(*event.Usage, event.Model))
				if index > snapshot.LastCompression {
					metadata.TokensSinceCompression += event.Usage.InputTokens + event.Usage.OutputTokens
				}
			}
			if event.Model != "" {
				metadata.Model = event.Model
			}
		case sessionlog.KindContextCompression:
			metadata.CompressionCount++
		}
	}
	return metadata
}

// Summary describes one persisted session for listing.
type Summary struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	CreatedAt    time.Time           `json:"created_at"`
	LastActivity time.Time           `json:"last_activity"`
	MessageCount int                 `json:"message_count"`
	Compressed   bool                `json:"compressed"`
	Model        string              `json:"model,omitempty"`
	Costs        ledger.SessionCosts `json:"costs"`
	Directory    string              `json:"directory"`
}

// List returns a summary of every session under root, most recently
// active first. Last activity is the metadata's updated_at, or the
// event log's modification time when the metadata does not say.
// Directories whose metadata cannot be read are summarized from their
// event log. A missing sessions directory yields no sessions.
func List(root string) ([]Summary, error) {
	parent := SessionsDirectory(root)
	entries, err := os.ReadDir(parent)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: listing %s: %w", parent, err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if !entry.IsDir() || ValidateID(entry.Name()) != nil {
			continue
		}
		summary, err := Summarize(root, entry.Name())
		if err != nil {
			continue
		}
		summaries = append(summaries, summary)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		if !summaries[i].LastActivity.Equal(summaries[j].LastActivity) {
			return summaries[i].LastActivity.After(summaries[j].LastActivity)
		}
		return summaries[i].ID > summaries[j].ID
	})
	return summaries, nil
}

// Summarize reads the summary of session id.
func Summarize(root, id string) (Summary, error) {
	if err := ValidateID(id); err != nil {
		return Summary{}, err
	}
	directory := Directory(root, id)
	info, err := os.Stat(directory)
	if err != nil || !info.IsDir() {
		return Summary{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	summary := Summary{ID: id, Title: PlaceholderTitle, Directory: directory}

	eventsPath := filepath.Join(directory, sessionlog.EventsFile)
	var eventsModified time.Time
	if eventsInfo, err := os.Stat(eventsPath); err == nil {
		eventsModified = eventsInfo.ModTime().UTC()
	}

	var metadata sessionlog.Metadata
	data, err := os.ReadFile(filepath.Join(directory, sessionlog.MetadataFile))
	if err == nil {
		metadata, err = sessionlog.DecodeMetadata(data)
	}
	if err != nil {
		events, _, readErr := sessionlog.ReadEvents(eventsPath)
		if readErr != nil {
			return Summary{}, readErr
		}
		metadata = replayMetadata(id, directory, sessionlog.Snapshot{
			Events:          events,
			LastCompression: lastCompressionIndex(events),
		}, ledger.DefaultPriceTable())
		metadata.MessageCount = countMessages(events)
		metadata.Compressed = metadata.CompressionCount > 0
	}

	if metadata.Title != "" {
		summary.Title = metadata.Title
	}
	summary.CreatedAt = metadata.CreatedAt
	summary.LastActivity = metadata.UpdatedAt
	if summary.LastActivity.IsZero() {
		summary.LastActivity = eventsModified
	}
	if summary.LastActivity.IsZero() {
		summary.LastActivity = info.ModTime().UTC()
	}
	summary.MessageCount = metadata.MessageCount
	summary.Compressed = metadata.Compressed
	summary.Model = metadata.Model
	summary.Costs = metadata.Costs
	return summary, nil
}

func lastCompressionIndex(events []sessionlog.Event) int {
	for index := len(events) - 1; index >= 0; index-- {
		if events[index].Kind == sessionlog.KindContextCompression {
			return index
		}
	}
	return -1
}
