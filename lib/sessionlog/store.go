// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/parley/lib/clock"
)

const (
	// EventsFile is the name of the append-only event log.
	EventsFile = "events.jsonl"

	// MetadataFile is the name of the session summary record.
	MetadataFile = "metadata.json"
)

// Store reads and writes one session directory. It holds no open file
// handles: each append opens, writes, syncs, and closes events.jsonl,
// so a crash loses at most the line being written.
//
// Store is safe for concurrent use in the sense that individual
// appends are atomic at the line level on local filesystems; the
// session manager still serializes writers so event order is
// deterministic.
type Store struct {
	directory string
	clock     clock.Clock
}

// Open returns a Store for directory, creating it if needed.
func Open(directory string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("sessionlog: creating %s: %w", directory, err)
	}
	return &Store{directory: directory, clock: clk}, nil
}

// Directory returns the session directory.
func (store *Store) Directory() string {
	return store.directory
}

// EventsPath returns the path of events.jsonl.
func (store *Store) EventsPath() string {
	return filepath.Join(store.directory, EventsFile)
}

// MetadataPath returns the path of metadata.json.
func (store *Store) MetadataPath() string {
	return filepath.Join(store.directory, MetadataFile)
}

// Append writes event as one JSON line. A zero timestamp is filled in
// from the store's clock, in UTC. The stamped event is returned.
//
// When the log ends in a partial line left by a crash, the event starts
// on a fresh line so only the fragment is lost.
func (store *Store) Append(event Event) (Event, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = store.clock.Now().UTC()
	}

	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(event); err != nil {
		return event, fmt.Errorf("sessionlog: encoding %s event: %w", event.Kind, err)
	}

	file, err := os.OpenFile(store.EventsPath(), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return event, fmt.Errorf("sessionlog: opening event log: %w", err)
	}
	torn, err := endsMidLine(file)
	if err != nil {
		file.Close()
		return event, err
	}
	line := buffer.Bytes()
	if torn {
		line = append([]byte{'\n'}, line...)
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return event, fmt.Errorf("sessionlog: appending %s event: %w", event.Kind, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return event, fmt.Errorf("sessionlog: syncing event log: %w", err)
	}
	if err := file.Close(); err != nil {
		return event, fmt.Errorf("sessionlog: closing event log: %w", err)
	}
	return event, nil
}

// endsMidLine reports whether file is non-empty and lacks a final
// newline.
func endsMidLine(file *os.File) (bool, error) {
	info, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("sessionlog: inspecting event log: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("sessionlog: reading event log tail: %w", err)
	}
	return last[0] != '\n', nil
}

// ReadMetadata loads metadata.json. found is false when the file does
// not exist, which means the session is fresh.
func (store *Store) ReadMetadata() (metadata Metadata, found bool, err error) {
	data, err := os.ReadFile(store.MetadataPath())
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("%w: %w", ErrMetadata, err)
	}
	metadata, err = DecodeMetadata(data)
	if err != nil {
		return Metadata{}, false, err
	}
	return metadata, true, nil
}

// ErrMetadata wraps every failure to read or decode metadata.json.
var ErrMetadata = errors.New("sessionlog: unreadable metadata")

// DecodeMetadata parses the contents of a metadata.json file.
func DecodeMetadata(data []byte) (Metadata, error) {
	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrMetadata, err)
	}
	return metadata, nil
}

// WriteMetadata replaces metadata.json. The record is written to a
// temporary file and renamed over the old one, so readers see either
// the old or the new record, never a torn one.
func (store *Store) WriteMetadata(metadata Metadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionlog: encoding metadata: %w", err)
	}
	data = append(data, '\n')
	return WriteFileAtomic(store.MetadataPath(), data, 0o644)
}

// WriteFileAtomic writes data to path through a temporary file in the
// same directory and a rename.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("sessionlog: creating temp file for %s: %w", path, err)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("sessionlog: writing %s: %w", temporaryPath, err)
	}
	if err := temporary.Chmod(perm); err != nil {
		temporary.Close()
		return fmt.Errorf("sessionlog: setting mode on %s: %w", temporaryPath, err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return fmt.Errorf("sessionlog: syncing %s: %w", temporaryPath, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("sessionlog: closing %s: %w", temporaryPath, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		return fmt.Errorf("sessionlog: renaming into %s: %w", path, err)
	}
	return nil
}

// Snapshot is a session's persisted state as found on disk.
type Snapshot struct {
	Events []Event

	// Metadata is the zero value when HasMetadata is false.
	Metadata    Metadata
	HasMetadata bool

	// Narrative is the content of the latest context_compression
	// event, empty when the session was never compressed.
	Narrative string

	// LastCompression is the index in Events of the latest
	// context_compression event, or -1.
	LastCompression int

	// Skipped counts event lines that could not be decoded.
	Skipped int
}

// Load reads the event log and metadata. A missing log or metadata
// file is an empty or fresh session, not an error. Corrupt event lines
// are skipped and counted. Corrupt metadata is reported as an error
// alongside the events, which are still returned.
func (store *Store) Load() (Snapshot, error) {
	events, skipped, err := ReadEvents(store.EventsPath())
	if err != nil {
		return Snapshot{LastCompression: -1}, err
	}

	snapshot := Snapshot{Events: events, Skipped: skipped, LastCompression: -1}
	for index, event := range events {
		if event.Kind == KindContextCompression {
			snapshot.Narrative = event.Content
			snapshot.LastCompression = index
		}
	}

	snapshot.Metadata, snapshot.HasMetadata, err = store.ReadMetadata()
	return snapshot, err
}

// ReadEvents decodes an events.jsonl file. Lines that are blank, not
// JSON, or of an unknown kind are skipped and counted; the rest of the
// file still loads. A missing file yields no events.
func ReadEvents(path string) (events []Event, skipped int, err error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("sessionlog: opening %s: %w", path, err)
	}
	defer file.Close()

	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if event, ok := DecodeEvent(line); ok {
				events = append(events, event)
			} else {
				skipped++
			}
		}
		if readErr == io.EOF {
			return events, skipped, nil
		}
		if readErr != nil {
			return events, skipped, fmt.Errorf("sessionlog: reading %s: %w", path, readErr)
		}
	}
}

// DecodeEvent parses one log line. ok is false for malformed lines and
// unknown kinds.
func DecodeEvent(line []byte) (Event, bool) {
	var event Event
	if err := json.Unmarshal(line, &event); err != nil {
		return Event{}, false
	}
	if !event.Kind.Valid() {
		return Event{}, false
	}
	return event, true
}
