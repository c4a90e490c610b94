// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/parley/lib/agent"
	"github.com/bureau-foundation/parley/lib/checkpoint"
	"github.com/bureau-foundation/parley/lib/clock"
	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/llm"
	"github.com/bureau-foundation/parley/lib/sessionlog"
	"github.com/bureau-foundation/parley/lib/testutil"
)

var testEpoch = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

// fakeSummarizer returns narratives in order and records every call.
type fakeSummarizer struct {
	mutex      sync.Mutex
	narratives []string
	errs       []error
	calls      [][]llm.Message
}

func (summarizer *fakeSummarizer) Summarize(_ context.Context, turns []llm.Message) (string, error) {
	summarizer.mutex.Lock()
	defer summarizer.mutex.Unlock()
	call := len(summarizer.calls)
	summarizer.calls = append(summarizer.calls, append([]llm.Message(nil), turns...))
	if call < len(summarizer.errs) && summarizer.errs[call] != nil {
		return "", summarizer.errs[call]
	}
	if call < len(summarizer.narratives) {
		return summarizer.narratives[call], nil
	}
	return "narrative", nil
}

func (summarizer *fakeSummarizer) callCount() int {
	summarizer.mutex.Lock()
	defer summarizer.mutex.Unlock()
	return len(summarizer.calls)
}

type titlerFunc func(ctx context.Context, firstMessage string) (string, error)

func (function titlerFunc) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	return function(ctx, firstMessage)
}

func testOptions(t *testing.T, summarizer *fakeSummarizer) Options {
	t.Helper()
	return Options{
		Root:       t.TempDir(),
		Model:      "gpt-4o",
		Summarizer: summarizer,
		Clock:      clock.Fake(testEpoch),
	}
}

func newTestManager(t *testing.T, options Options) *Manager {
	t.Helper()
	manager, err := New(options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(manager.Close)
	return manager
}

func readEvents(t *testing.T, manager *Manager) []sessionlog.Event {
	t.Helper()
	store, err := sessionlog.Open(manager.Directory(), nil)
	if err != nil {
		t.Fatal(err)
	}
	snapshot, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return snapshot.Events
}

func kinds(events []sessionlog.Event) []sessionlog.Kind {
	result := make([]sessionlog.Kind, len(events))
	for index, event := range events {
		result[index] = event.Kind
	}
	return result
}

// runTurn drives one chat-loop iteration with a canned answer.
func runTurn(manager *Manager, prompt, answer string, usage ledger.Usage) {
	manager.LogUserMessage(prompt)
	history := manager.MessageHistory()
	all := append(history, llm.UserMessage(prompt), llm.AssistantMessage(answer))
	manager.LogRunUsage(usage, "gpt-4o")
	manager.LogNewMessages(all)
}

func TestNothingWrittenBeforeFirstUserMessage(t *testing.T) {
	t.Parallel()

	options := testOptions(t, &fakeSummarizer{})
	manager := newTestManager(t, options)
	manager.LogSystemPrompt("You are helpful.")

	if manager.ID() != "" || manager.Directory() != "" {
		t.Fatalf("session claimed before any user message: id %q", manager.ID())
	}
	if _, err := os.Stat(SessionsDirectory(options.Root)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("sessions directory exists before any user message: %v", err)
	}

	manager.LogUserMessage("hello")
	if manager.ID() != "20260314-150926" {
		t.Errorf("ID = %q, want 20260314-150926", manager.ID())
	}
	got := kinds(readEvents(t, manager))
	want := []sessionlog.Kind{sessionlog.KindSystemPrompt, sessionlog.KindUserMessage}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("persisted kinds = %v, want %v", got, want)
	}
	if metadata := manager.Metadata(); metadata.MessageCount != 1 || metadata.Title != PlaceholderTitle {
		t.Errorf("metadata = %+v", metadata)
	}
}

func TestSessionIDCollision(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	first, _, err := allocate(root, testEpoch)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := allocate(root, testEpoch)
	if err != nil {
		t.Fatal(err)
	}
	third, directory, err := allocate(root, testEpoch)
	if err != nil {
		t.Fatal(err)
	}
	if first != "20260314-150926" || second != "20260314-150926-2" || third != "20260314-150926-3" {
		t.Errorf("IDs = %q %q %q", first, second, third)
	}
	if directory != Directory(root, third) {
		t.Errorf("directory = %q", directory)
	}
}

func TestUsageAccumulates(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, testOptions(t, &fakeSummarizer{}))
	runTurn(manager, "one", "first", ledger.Usage{InputTokens: 100, OutputTokens: 10, Requests: 1})
	runTurn(manager, "two", "second", ledger.Usage{InputTokens: 200, OutputTokens: 20, Requests: 1})
	manager.LogRunUsage(ledger.Usage{InputTokens: 5, OutputTokens: 1, Requests: 1}, "")

	costs := manager.Costs()
	if costs.Total.InputTokens != 305 || costs.Total.OutputTokens != 31 || costs.Total.Requests != 3 {
		t.Errorf("total = %+v", costs.Total)
	}
	if costs.Models["gpt-4o"].InputTokens != 300 {
		t.Errorf("gpt-4o breakdown = %+v", costs.Models["gpt-4o"])
	}
	if costs.Models[ledger.UnknownModel].Requests != 1 {
		t.Errorf("unknown breakdown = %+v", costs.Models[ledger.UnknownModel])
	}

	store, _ := sessionlog.Open(manager.Directory(), nil)
	persisted, found, err := store.ReadMetadata()
	if err != nil || !found {
		t.Fatalf("ReadMetadata = %v, %v", found, err)
	}
	if persisted.Costs.Total.InputTokens != 305 || persisted.MessageCount != 4 {
		t.Errorf("persisted metadata = %+v", persisted)
	}
}

func TestUsageAttachesToFinalResponse(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, testOptions(t, &fakeSummarizer{}))
	manager.LogUserMessage("compare")
	history := manager.MessageHistory()
	all := append(history,
		llm.UserMessage("compare"),
		llm.AssistantMessage("thinking"),
		llm.AssistantMessage("done"),
	)
	manager.LogRunUsage(ledger.Usage{InputTokens: 40, OutputTokens: 4, Requests: 2}, "gpt-4o")
	manager.LogNewMessages(all)

	events := readEvents(t, manager)
	if len(events) != 3 {
		t.Fatalf("events = %v", kinds(events))
	}
	if events[1].Usage != nil {
		t.Errorf("intermediate response carries usage %+v", events[1].Usage)
	}
	if events[2].Usage == nil || events[2].Usage.InputTokens != 40 || events[2].Model != "gpt-4o" {
		t.Errorf("final response = %+v", events[2])
	}
}

func TestLogNewMessagesRecordsOnlyDeltas(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, testOptions(t, &fakeSummarizer{}))
	runTurn(manager, "one", "first", ledger.Usage{InputTokens: 1, Requests: 1})

	manager.LogUserMessage("two")
	history := manager.MessageHistory()
	if len(history) != 2 {
		t.Fatalf("history = %d messages, want 2", len(history))
	}
	all := append(history, llm.UserMessage("two"), llm.AssistantMessage("second"))
	manager.LogNewMessages(all)
	manager.LogNewMessages(all)

	var answers []string
	for _, event := range readEvents(t, manager) {
		if event.Kind == sessionlog.KindAssistantResponse {
			answers = append(answers, event.Content)
		}
	}
	if strings.Join(answers, ",") != "first,second" {
		t.Errorf("assistant responses = %q, want first,second", answers)
	}
}

func TestMessageHistoryDropsUnansweredPrompts(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, testOptions(t, &fakeSummarizer{}))
	runTurn(manager, "one", "first", ledger.Usage{Requests: 1})
	manager.LogUserMessage("broken")
	manager.LogError("connection refused")
	manager.LogUserMessage("interrupted")

	history := manager.MessageHistory()
	if len(history) != 2 || history[0].Text() != "one" || history[1].Text() != "first" {
		t.Errorf("history = %+v", history)
	}
	if shown := manager.ConversationContext(); len(shown) != 5 {
		t.Errorf("ConversationContext = %d events, want 5", len(shown))
	}
}

func TestCompression(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{narratives: []string{"They discussed Go."}}
	options := testOptions(t, summarizer)
	options.ContextWindow = 1000
	manager := newTestManager(t, options)

	manager.LogSystemPrompt("You are helpful.")
	runTurn(manager, "one", "first", ledger.Usage{InputTokens: 500, OutputTokens: 100, Requests: 1})
	manager.CompressContextIfNeeded(context.Background())
	if summarizer.callCount() != 0 {
		t.Fatalf("compressed below the limit")
	}

	runTurn(manager, "two", "second", ledger.Usage{InputTokens: 300, OutputTokens: 50, Requests: 1})
	estimate, limit := manager.ContextEstimate()
	if estimate < limit {
		t.Fatalf("estimate %d under limit %d", estimate, limit)
	}

	manager.CompressContextIfNeeded(context.Background())
	manager.CompressContextIfNeeded(context.Background())
	if summarizer.callCount() != 1 {
		t.Fatalf("summarizer called %d times, want 1", summarizer.callCount())
	}
	if turns := summarizer.calls[0]; len(turns) != 4 || turns[0].Text() != "one" {
		t.Errorf("summarized turns = %+v", turns)
	}

	events := readEvents(t, manager)
	compressions := 0
	var compression sessionlog.Event
	for _, event := range events {
		if event.Kind == sessionlog.KindContextCompression {
			compressions++
			compression = event
		}
	}
	if compressions != 1 {
		t.Fatalf("%d compression events, want 1", compressions)
	}
	if compression.Content != "They discussed Go." || compression.ReplacedTurns != 4 {
		t.Errorf("compression event = %+v", compression)
	}

	config := manager.AgentConfig(agent.Config{SystemPrompt: "You are helpful."})
	if !strings.Contains(config.SystemPrompt, "They discussed Go.") {
		t.Errorf("system prompt lacks the narrative: %q", config.SystemPrompt)
	}
	if history := manager.MessageHistory(); len(history) != 0 {
		t.Errorf("history after compression = %+v, want empty", history)
	}

	metadata := manager.Metadata()
	if !metadata.Compressed || metadata.CompressionCount != 1 || metadata.TokensSinceCompression != 0 {
		t.Errorf("metadata = %+v", metadata)
	}

	hash, err := checkpoint.ParseHash(compression.Checkpoint)
	if err != nil {
		t.Fatalf("checkpoint reference %q: %v", compression.Checkpoint, err)
	}
	store := checkpoint.NewStore(CheckpointDirectory(manager.Directory()))
	record, err := store.Read(checkpoint.Ref{Hash: hash, Compression: checkpoint.Compression(compression.CheckpointCompression)})
	if err != nil {
		t.Fatalf("reading checkpoint: %v", err)
	}
	if len(record.Turns) != 4 || record.Narrative != "They discussed Go." {
		t.Errorf("checkpoint record = %+v", record)
	}
}

func TestCompressionAtExactLimit(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{}
	options := testOptions(t, summarizer)
	options.ContextWindow = 1000
	manager := newTestManager(t, options)

	runTurn(manager, "one", "first", ledger.Usage{InputTokens: 700, OutputTokens: 100, Requests: 1})
	if estimate, limit := manager.ContextEstimate(); estimate != 800 || limit != 800 {
		t.Fatalf("estimate, limit = %d, %d, want 800, 800", estimate, limit)
	}
	manager.CompressContextIfNeeded(context.Background())
	manager.CompressContextIfNeeded(context.Background())
	if summarizer.callCount() != 1 {
		t.Fatalf("summarizer called %d times, want 1", summarizer.callCount())
	}
	compressions := 0
	for _, event := range readEvents(t, manager) {
		if event.Kind == sessionlog.KindContextCompression {
			compressions++
		}
	}
	if compressions != 1 {
		t.Errorf("%d compression events, want 1", compressions)
	}
}

func TestCompressionKeepsPromptAwaitingAnswer(t *testing.T) {
	t.Parallel()

	options := testOptions(t, &fakeSummarizer{})
	options.ContextWindow = 100
	manager := newTestManager(t, options)

	runTurn(manager, "one", "first", ledger.Usage{InputTokens: 90, Requests: 1})
	manager.LogUserMessage("two")
	manager.CompressContextIfNeeded(context.Background())

	history := manager.MessageHistory()
	if len(history) != 0 {
		t.Fatalf("history before the answer = %+v", history)
	}
	all := append(history, llm.UserMessage("two"), llm.AssistantMessage("second"))
	manager.LogRunUsage(ledger.Usage{InputTokens: 10, Requests: 1}, "gpt-4o")
	manager.LogNewMessages(all)

	history = manager.MessageHistory()
	if len(history) != 2 || history[0].Text() != "two" || history[1].Text() != "second" {
		t.Errorf("history = %+v, want the answered prompt", history)
	}
}

func TestCompressionFailureRetries(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{
		errs:       []error{errors.New("rate limited")},
		narratives: []string{"", "recovered"},
	}
	options := testOptions(t, summarizer)
	options.ContextWindow = 100
	manager := newTestManager(t, options)

	runTurn(manager, "one", "first", ledger.Usage{InputTokens: 90, Requests: 1})
	manager.CompressContextIfNeeded(context.Background())
	if manager.Narrative() != "" {
		t.Fatalf("narrative set after a failed compression")
	}
	for _, event := range readEvents(t, manager) {
		if event.Kind == sessionlog.KindContextCompression {
			t.Fatal("compression event logged for a failed attempt")
		}
	}

	manager.CompressContextIfNeeded(context.Background())
	if summarizer.callCount() != 2 || manager.Narrative() != "recovered" {
		t.Errorf("calls = %d, narrative = %q", summarizer.callCount(), manager.Narrative())
	}
}

func TestTitleGeneration(t *testing.T) {
	t.Parallel()

	options := testOptions(t, &fakeSummarizer{})
	requests := make(chan string, 2)
	options.Titler = titlerFunc(func(_ context.Context, firstMessage string) (string, error) {
		requests <- firstMessage
		return "**Title:** Debugging flaky tests!", nil
	})
	manager := newTestManager(t, options)

	manager.LogUserMessage("why does my test fail sometimes?")
	manager.LogUserMessage("second question")

	first := testutil.RequireReceive(t, requests, 5*time.Second, "waiting for the title request")
	if first != "why does my test fail sometimes?" {
		t.Errorf("titled from %q", first)
	}
	testutil.RequireClosed(t, manager.TitleDone(), 5*time.Second, "waiting for the title to land")
	if len(requests) != 0 {
		t.Errorf("title requested more than once")
	}

	if title := manager.Metadata().Title; title != "Debugging flaky tests" {
		t.Errorf("Title = %q", title)
	}
	store, _ := sessionlog.Open(manager.Directory(), nil)
	persisted, _, _ := store.ReadMetadata()
	if persisted.Title != "Debugging flaky tests" {
		t.Errorf("persisted title = %q", persisted.Title)
	}
}

func TestTitleFailureKeepsPlaceholder(t *testing.T) {
	t.Parallel()

	options := testOptions(t, &fakeSummarizer{})
	options.Titler = titlerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	})
	manager := newTestManager(t, options)
	manager.LogUserMessage("hello")

	testutil.RequireClosed(t, manager.TitleDone(), 5*time.Second, "waiting for the title attempt")
	if title := manager.Metadata().Title; title != PlaceholderTitle {
		t.Errorf("Title = %q, want the placeholder", title)
	}
}

func TestCloseCancelsTitleRequest(t *testing.T) {
	t.Parallel()

	options := testOptions(t, &fakeSummarizer{})
	started := make(chan struct{})
	options.Titler = titlerFunc(func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	manager, err := New(options)
	if err != nil {
		t.Fatal(err)
	}
	manager.LogUserMessage("hello")
	testutil.RequireClosed(t, started, 5*time.Second, "waiting for the title request")

	closed := make(chan struct{})
	go func() {
		manager.Close()
		close(closed)
	}()
	testutil.RequireClosed(t, closed, 5*time.Second, "Close did not cancel the title request")
}
