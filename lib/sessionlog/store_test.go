// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/parley/lib/clock"
	"github.com/bureau-foundation/parley/lib/ledger"
)

var testEpoch = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(testEpoch)
	store, err := Open(filepath.Join(t.TempDir(), "20260314-150926"), fake)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store, fake
}

func TestAppendAndLoad(t *testing.T) {
	t.Parallel()

	store, fake := openTestStore(t)
	appends := []Event{
		{Kind: KindSystemPrompt, Content: "You are helpful."},
		{Kind: KindUserMessage, Content: "hello"},
		{Kind: KindAssistantResponse, Content: "hi", Model: "gpt-4o", Usage: &ledger.Usage{InputTokens: 10, OutputTokens: 2, Requests: 1}},
		{Kind: KindContextCompression, Content: "first narrative"},
		{Kind: KindUserMessage, Content: "again"},
		{Kind: KindContextCompression, Content: "second narrative", Checkpoint: "abc123"},
	}
	for _, event := range appends {
		fake.Advance(time.Second)
		stamped, err := store.Append(event)
		if err != nil {
			t.Fatalf("Append(%s): %v", event.Kind, err)
		}
		if !stamped.Timestamp.Equal(fake.Now()) {
			t.Errorf("timestamp = %v, want %v", stamped.Timestamp, fake.Now())
		}
	}

	snapshot, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snapshot.Events) != len(appends) {
		t.Fatalf("loaded %d events, want %d", len(snapshot.Events), len(appends))
	}
	for index, event := range snapshot.Events {
		if event.Kind != appends[index].Kind || event.Content != appends[index].Content {
			t.Errorf("event %d = %s %q, want %s %q", index, event.Kind, event.Content,
				appends[index].Kind, appends[index].Content)
		}
	}
	if got := snapshot.Events[2].Usage; got == nil || got.InputTokens != 10 {
		t.Errorf("usage not preserved: %+v", got)
	}
	if snapshot.Narrative != "second narrative" {
		t.Errorf("Narrative = %q, want the latest compression", snapshot.Narrative)
	}
	if snapshot.LastCompression != 5 {
		t.Errorf("LastCompression = %d, want 5", snapshot.LastCompression)
	}
	if snapshot.HasMetadata {
		t.Error("HasMetadata = true for a session without metadata.json")
	}
}

func TestLoadSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	if _, err := store.Append(Event{Kind: KindUserMessage, Content: "one"}); err != nil {
		t.Fatal(err)
	}

	file, err := os.OpenFile(store.EventsPath(), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	file.WriteString("{not json\n")
	file.WriteString(`{"timestamp":"2026-03-14T15:09:26Z","type":"bogus","content":"x"}` + "\n")
	file.WriteString("\n")
	file.Close()

	if _, err := store.Append(Event{Kind: KindAssistantResponse, Content: "two"}); err != nil {
		t.Fatal(err)
	}

	// A torn final line, as a crash mid-write would leave.
	file, _ = os.OpenFile(store.EventsPath(), os.O_WRONLY|os.O_APPEND, 0o644)
	file.WriteString(`{"timestamp":"2026-03-14T15:09:26Z","type":"user_mes`)
	file.Close()

	snapshot, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snapshot.Events) != 2 {
		t.Fatalf("loaded %d events, want 2", len(snapshot.Events))
	}
	if snapshot.Events[0].Content != "one" || snapshot.Events[1].Content != "two" {
		t.Errorf("events = %+v", snapshot.Events)
	}
	if snapshot.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3", snapshot.Skipped)
	}
}

func TestAppendAfterTornLine(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	if _, err := store.Append(Event{Kind: KindUserMessage, Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	file, err := os.OpenFile(store.EventsPath(), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	file.WriteString(`{"timestamp":"2026-03-14T15:09:27Z","type":"assist`)
	file.Close()

	if _, err := store.Append(Event{Kind: KindUserMessage, Content: "after crash"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	snapshot, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snapshot.Events) != 2 || snapshot.Events[1].Content != "after crash" {
		t.Fatalf("events = %+v, want the event written after the torn line", snapshot.Events)
	}
	if snapshot.Skipped != 1 {
		t.Errorf("Skipped = %d, want only the fragment", snapshot.Skipped)
	}
}

func TestLoadMissingFiles(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	snapshot, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snapshot.Events) != 0 || snapshot.HasMetadata || snapshot.LastCompression != -1 {
		t.Errorf("empty session snapshot = %+v", snapshot)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	cost := 0.5
	var costs ledger.SessionCosts
	costs.Add(ledger.UsageCosts{InputTokens: 100, OutputTokens: 20, TotalTokens: 120, Requests: 1, CostUSD: &cost, Model: "gpt-4o"})

	written := Metadata{
		SessionID:     "20260314-150926",
		Title:         "Debugging a flaky test",
		CreatedAt:     testEpoch,
		UpdatedAt:     testEpoch.Add(time.Hour),
		MessageCount:  4,
		ContextWindow: 128000,
		Costs:         costs,
	}
	if err := store.WriteMetadata(written); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	// Overwrite to make sure the rename replaces the file.
	written.Title = "Renamed"
	if err := store.WriteMetadata(written); err != nil {
		t.Fatalf("second WriteMetadata: %v", err)
	}

	read, found, err := store.ReadMetadata()
	if err != nil || !found {
		t.Fatalf("ReadMetadata = %v, %v", found, err)
	}
	if read.Title != "Renamed" || read.MessageCount != 4 || !read.UpdatedAt.Equal(written.UpdatedAt) {
		t.Errorf("metadata = %+v", read)
	}
	if read.Costs.Total.CostUSD == nil || *read.Costs.Total.CostUSD != 0.5 {
		t.Errorf("costs not preserved: %+v", read.Costs.Total)
	}

	entries, _ := os.ReadDir(store.Directory())
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Errorf("temporary file left behind: %s", entry.Name())
		}
	}
}

func TestReadMetadataCorrupt(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	os.WriteFile(store.MetadataPath(), []byte("{"), 0o644)
	if _, found, err := store.ReadMetadata(); err == nil || found {
		t.Errorf("ReadMetadata on corrupt file = found %v, err %v; want error", found, err)
	}
}
