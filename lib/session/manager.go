// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/parley/lib/agent"
	"github.com/bureau-foundation/parley/lib/checkpoint"
	"github.com/bureau-foundation/parley/lib/clock"
	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/llm"
	llmcontext "github.com/bureau-foundation/parley/lib/llm/context"
	"github.com/bureau-foundation/parley/lib/sessionlog"
)

// PlaceholderTitle names a session until its generated title arrives.
const PlaceholderTitle = "New session"

// titleTimeout bounds the background title request.
const titleTimeout = 30 * time.Second

// Titler produces a short title from a session's first user message.
type Titler interface {
	GenerateTitle(ctx context.Context, firstMessage string) (string, error)
}

// Options configures [New] and [Resume].
type Options struct {
	// Root is the application data root. Sessions live under
	// Root/sessions. Required.
	Root string

	// Model is the primary model. It selects the context window when
	// ContextWindow is zero and is recorded in the metadata.
	Model string

	// ContextWindow is the token budget. Zero means the window the
	// model registry reports for Model (or the one a resumed session
	// recorded).
	ContextWindow int

	// Threshold is the fraction of the window that triggers
	// compression. Zero means llmcontext.DefaultThreshold.
	Threshold float64

	// Summarizer condenses turns during compression. Required.
	Summarizer llmcontext.Summarizer

	// Titler names fresh sessions. Nil leaves the placeholder title.
	Titler Titler

	// Prices defaults to ledger.DefaultPriceTable().
	Prices *ledger.PriceTable

	// Estimator defaults to a fresh llmcontext.CharEstimator.
	Estimator llmcontext.TokenEstimator

	// DisableCheckpoints skips archiving compressed turns.
	DisableCheckpoints bool

	Clock  clock.Clock
	Logger *slog.Logger
}

func (options *Options) setDefaults() error {
	if options.Root == "" {
		return errors.New("session: data root is required")
	}
	if options.Summarizer == nil {
		return errors.New("session: summarizer is required")
	}
	if options.Prices == nil {
		options.Prices = ledger.DefaultPriceTable()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Manager records one session and answers the chat loop's questions
// about it. All methods are safe for concurrent use; in practice the
// only concurrency is the background title request.
type Manager struct {
	root        string
	prices      *ledger.PriceTable
	compressor  *llmcontext.Compressor
	titler      Titler
	checkpoints bool
	clock       clock.Clock
	logger      *slog.Logger

	// cancel stops the title request when the manager closes.
	background context.Context
	cancel     context.CancelFunc
	titleDone  chan struct{}

	mutex sync.Mutex

	// store is nil until the session directory is claimed. Events
	// logged before then wait in events and are flushed on claim.
	store    *sessionlog.Store
	metadata sessionlog.Metadata
	events   []sessionlog.Event

	// lastCompression indexes the latest context_compression event in
	// events, or is -1.
	lastCompression int

	// logged is the watermark of LogNewMessages: positions below it
	// in the current run's message slice are already recorded.
	logged int

	// runHistory and runPrompt are what the current run was seeded
	// with; systemPrompt is the latest logged system prompt. Together
	// they calibrate the token estimator when usage arrives.
	runHistory   []llm.Message
	runPrompt    string
	systemPrompt string

	// runUsage and runModel hold the usage booked by LogRunUsage until
	// LogNewMessages attaches it to the run's final response.
	runUsage *ledger.Usage
	runModel string

	// titleStarted is set once a user message exists, so a resumed
	// session is never retitled. titleRunning is set when a request
	// goroutine was actually launched.
	titleStarted bool
	titleRunning bool
}

// New returns a Manager for a fresh session. Nothing is written until
// the first user message is logged.
func New(options Options) (*Manager, error) {
	if err := options.setDefaults(); err != nil {
		return nil, err
	}
	manager, err := newManager(options, contextWindow(options.ContextWindow, 0, options.Model))
	if err != nil {
		return nil, err
	}
	now := options.Clock.Now().UTC()
	manager.metadata = sessionlog.Metadata{
		Title:         PlaceholderTitle,
		CreatedAt:     now,
		UpdatedAt:     now,
		ContextWindow: manager.metadata.ContextWindow,
		Model:         options.Model,
	}
	return manager, nil
}

func newManager(options Options, window int) (*Manager, error) {
	compressor, err := llmcontext.NewCompressor(llmcontext.CompressorConfig{
		ContextWindow: window,
		Threshold:     options.Threshold,
		Summarizer:    options.Summarizer,
		Estimator:     options.Estimator,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	background, cancel := context.WithCancel(context.Background())
	return &Manager{
		root:            options.Root,
		prices:          options.Prices,
		compressor:      compressor,
		titler:          options.Titler,
		checkpoints:     !options.DisableCheckpoints,
		clock:           options.Clock,
		logger:          options.Logger,
		background:      background,
		cancel:          cancel,
		titleDone:       make(chan struct{}),
		lastCompression: -1,
		metadata:        sessionlog.Metadata{ContextWindow: window},
	}, nil
}

// contextWindow picks the first positive of configured and recorded,
// falling back to the model registry.
func contextWindow(configured, recorded int, model string) int {
	switch {
	case configured > 0:
		return configured
	case recorded > 0:
		return recorded
	}
	return llmcontext.ContextWindowForModel(model)
}

// ID returns the session ID, empty until the session directory has
// been claimed.
func (manager *Manager) ID() string {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.metadata.SessionID
}

// Directory returns the session directory, empty until claimed.
func (manager *Manager) Directory() string {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	if manager.store == nil {
		return ""
	}
	return manager.store.Directory()
}

// Metadata returns a copy of the session's summary record.
func (manager *Manager) Metadata() sessionlog.Metadata {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	metadata := manager.metadata
	metadata.Costs.Models = make(map[string]ledger.UsageCosts, len(manager.metadata.Costs.Models))
	for name, entry := range manager.metadata.Costs.Models {
		metadata.Costs.Models[name] = entry
	}
	return metadata
}

// Costs returns the session's accumulated usage.
func (manager *Manager) Costs() ledger.SessionCosts {
	return manager.Metadata().Costs
}

// Narrative returns the latest compressed narrative, empty if the
// session was never compressed.
func (manager *Manager) Narrative() string {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.compressor.Narrative()
}

// ContextEstimate returns the compressor's token estimate and the
// limit above which it compresses.
func (manager *Manager) ContextEstimate() (estimate, limit int64) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.compressor.Estimate(), manager.compressor.Limit()
}

// AgentConfig returns base extended with the session's narrative: the
// configuration the next run should use.
func (manager *Manager) AgentConfig(base agent.Config) agent.Config {
	return base.WithCompressedContext(manager.Narrative())
}

// LogSystemPrompt records the system prompt in effect.
func (manager *Manager) LogSystemPrompt(text string) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	manager.systemPrompt = text
	manager.appendLocked(sessionlog.Event{Kind: sessionlog.KindSystemPrompt, Content: text})
	manager.afterMutationLocked()
}

// LogUserMessage records a user prompt. The first one claims the
// session directory and, for a session that has never had a user
// message, starts the background title request.
func (manager *Manager) LogUserMessage(text string) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	manager.appendLocked(sessionlog.Event{Kind: sessionlog.KindUserMessage, Content: text})
	manager.metadata.MessageCount++
	manager.compressor.RecordText(text)
	manager.runPrompt = text
	manager.afterMutationLocked()

	if !manager.titleStarted {
		manager.titleStarted = true
		manager.startTitleLocked(text)
	}
}

// LogAssistantResponse records an answer. usage and model, when known,
// are stored on the event; booking them into the ledger is
// [Manager.LogRunUsage]'s job.
func (manager *Manager) LogAssistantResponse(text string, usage *ledger.Usage, model string) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	manager.logAssistantLocked(text, usage, model)
	manager.afterMutationLocked()
}

func (manager *Manager) logAssistantLocked(text string, usage *ledger.Usage, model string) {
	manager.appendLocked(sessionlog.Event{
		Kind:    sessionlog.KindAssistantResponse,
		Content: text,
		Model:   model,
		Usage:   usage,
	})
	manager.metadata.MessageCount++
}

// LogError records a failed run in place of its answer.
func (manager *Manager) LogError(text string) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	manager.appendLocked(sessionlog.Event{Kind: sessionlog.KindError, Content: text})
	manager.metadata.MessageCount++
	manager.runUsage, manager.runModel = nil, ""
	manager.afterMutationLocked()
}

// LogRunUsage books one run's usage: priced into the session costs and
// added to the compressor's estimate. The usage is also attached to
// the response the next [Manager.LogNewMessages] records.
func (manager *Manager) LogRunUsage(usage ledger.Usage, model string) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	manager.metadata.Costs.Add(manager.prices.Calculate(usage, model))
	if model != "" {
		manager.metadata.Model = model
	}

	sent := make([]llm.Message, 0, len(manager.runHistory)+2)
	if manager.systemPrompt != "" {
		sent = append(sent, llm.UserMessage(manager.compressor.SystemPrompt(manager.systemPrompt)))
	}
	sent = append(sent, manager.runHistory...)
	if manager.runPrompt != "" {
		sent = append(sent, llm.UserMessage(manager.runPrompt))
	}
	manager.compressor.RecordUsage(sent, llm.Usage{
		InputTokens:     usage.InputTokens,
		OutputTokens:    usage.OutputTokens,
		CacheReadTokens: usage.CachedTokens,
	})

	booked := usage
	manager.runUsage, manager.runModel = &booked, model
	manager.afterMutationLocked()
}

// LogNewMessages records the assistant messages in all that have not
// been recorded in this run. all is the run's complete message list:
// the history from [Manager.MessageHistory], then the prompt, then the
// answers. Calling it again with an overlapping list records nothing
// twice.
func (manager *Manager) LogNewMessages(all []llm.Message) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.logged > len(all) {
		manager.logged = len(all)
	}
	last := -1
	for index := manager.logged; index < len(all); index++ {
		if all[index].Role == llm.RoleAssistant {
			last = index
		}
	}
	for index := manager.logged; index < len(all); index++ {
		if all[index].Role != llm.RoleAssistant {
			continue
		}
		var usage *ledger.Usage
		var model string
		if index == last {
			usage, model = manager.runUsage, manager.runModel
		}
		manager.logAssistantLocked(all[index].Text(), usage, model)
	}
	if last >= 0 {
		manager.runUsage, manager.runModel = nil, ""
	}
	manager.logged = len(all)
	manager.afterMutationLocked()
}

// MessageHistory returns the completed user and assistant turns since
// the last compression, ready to seed a run. A user message that got
// no answer (it failed, or the run was interrupted) is left out. The
// call starts a new run for [Manager.LogNewMessages].
func (manager *Manager) MessageHistory() []llm.Message {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	history := historySince(manager.events, manager.lastCompression)
	manager.logged = len(history)
	manager.runHistory = history
	return append([]llm.Message(nil), history...)
}

// ConversationContext returns the displayable events in order: user
// messages, assistant responses, and errors.
func (manager *Manager) ConversationContext() []sessionlog.Event {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return displayable(manager.events)
}

// CompressContextIfNeeded summarizes the turns since the last
// compression when the estimate reaches the limit, and is a no-op
// otherwise. It returns once the check and any summarization finish.
// Calls are serialized, so only one compression is ever in flight; a
// call that finds the work already done does nothing. A failed
// summarization is logged and retried at the next call.
func (manager *Manager) CompressContextIfNeeded(ctx context.Context) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if !manager.compressor.NeedsCompression() {
		return
	}
	turns := historySince(manager.events, manager.lastCompression)
	if len(turns) == 0 {
		manager.logger.Debug("context over limit with no completed turns to compress",
			"estimate", manager.compressor.Estimate(),
			"limit", manager.compressor.Limit(),
		)
		return
	}

	previous := manager.compressor.Narrative()
	estimate := manager.compressor.Estimate()
	narrative, err := manager.compressor.Compress(ctx, turns)
	if err != nil {
		manager.logger.Warn("context compression failed, will retry",
			"session", manager.metadata.SessionID,
			"turns", len(turns),
			"error", err,
		)
		return
	}

	event := sessionlog.Event{
		Kind:          sessionlog.KindContextCompression,
		Content:       narrative,
		ReplacedTurns: len(turns),
	}
	if ref, ok := manager.writeCheckpointLocked(previous, narrative, turns); ok {
		event.Checkpoint = ref.Hash.String()
		event.CheckpointCompression = string(ref.Compression)
	}
	manager.appendLocked(event)
	manager.lastCompression = len(manager.events) - 1
	manager.runHistory = nil

	manager.metadata.Compressed = true
	manager.metadata.CompressedContext = narrative
	manager.metadata.CompressionCount++
	manager.afterMutationLocked()

	manager.logger.Info("context compressed",
		"session", manager.metadata.SessionID,
		"turns", len(turns),
		"estimate_before", estimate,
		"narrative_tokens", manager.compressor.Estimate(),
		"compressions", manager.metadata.CompressionCount,
	)
}

func (manager *Manager) writeCheckpointLocked(previous, narrative string, turns []llm.Message) (checkpoint.Ref, bool) {
	if !manager.checkpoints || manager.store == nil {
		return checkpoint.Ref{}, false
	}
	record := checkpoint.Record{
		SessionID:         manager.metadata.SessionID,
		CreatedAt:         manager.clock.Now().UTC(),
		PreviousNarrative: previous,
		Narrative:         narrative,
		Turns:             make([]checkpoint.Turn, len(turns)),
	}
	for index, turn := range turns {
		record.Turns[index] = checkpoint.Turn{Role: string(turn.Role), Content: turn.Text()}
	}
	ref, err := checkpoint.NewStore(CheckpointDirectory(manager.store.Directory())).Write(record)
	if err != nil {
		manager.logger.Warn("writing compression checkpoint failed",
			"session", manager.metadata.SessionID,
			"error", err,
		)
		return checkpoint.Ref{}, false
	}
	return ref, true
}

// Close stops a title request still in flight and waits for it.
func (manager *Manager) Close() {
	manager.cancel()
	manager.mutex.Lock()
	started := manager.titleRunning
	manager.mutex.Unlock()
	if started {
		<-manager.titleDone
	}
}

// TitleDone is closed when the background title request finishes. It
// never closes for a session that started no request.
func (manager *Manager) TitleDone() <-chan struct{} {
	return manager.titleDone
}

func (manager *Manager) startTitleLocked(firstMessage string) {
	if manager.titler == nil {
		return
	}
	manager.titleRunning = true
	go func() {
		defer close(manager.titleDone)
		ctx, cancel := context.WithTimeout(manager.background, titleTimeout)
		defer cancel()

		title, err := manager.titler.GenerateTitle(ctx, firstMessage)
		if err == nil {
			title = agent.SanitizeTitle(title)
			if title == "" {
				err = errors.New("empty title")
			}
		}
		if err != nil {
			manager.logger.Warn("session title generation failed", "error", err)
			return
		}

		manager.mutex.Lock()
		defer manager.mutex.Unlock()
		manager.metadata.Title = title
		manager.writeMetadataLocked()
		manager.logger.Debug("session titled", "session", manager.metadata.SessionID, "title", title)
	}()
}

// appendLocked stamps event, adds it to the in-memory log, and writes
// it. Before the directory is claimed, events are held in memory; the
// first user message claims the directory and flushes them.
func (manager *Manager) appendLocked(event sessionlog.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = manager.clock.Now().UTC()
	}
	manager.events = append(manager.events, event)

	if manager.store == nil {
		if event.Kind != sessionlog.KindUserMessage {
			return
		}
		if err := manager.claimLocked(); err != nil {
			manager.logger.Warn("creating session directory failed", "error", err)
			return
		}
		for _, pending := range manager.events {
			manager.writeEventLocked(pending)
		}
		return
	}
	manager.writeEventLocked(event)
}

func (manager *Manager) writeEventLocked(event sessionlog.Event) {
	if _, err := manager.store.Append(event); err != nil {
		manager.logger.Warn("appending session event failed",
			"session", manager.metadata.SessionID,
			"kind", event.Kind,
			"error", err,
		)
	}
}

// claimLocked allocates the session directory.
func (manager *Manager) claimLocked() error {
	id, directory, err := allocate(manager.root, manager.clock.Now())
	if err != nil {
		return err
	}
	store, err := sessionlog.Open(directory, manager.clock)
	if err != nil {
		return err
	}
	manager.store = store
	manager.metadata.SessionID = id
	manager.logger.Info("session created", "session", id, "directory", directory)
	return nil
}

// afterMutationLocked is the single bookkeeping step run after every
// operation that changes the log: it mirrors the compressor's counter
// into the metadata, persists the metadata, and notes when compression
// has become due.
func (manager *Manager) afterMutationLocked() {
	manager.metadata.TokensSinceCompression = manager.compressor.ReportedTokens()
	manager.writeMetadataLocked()
	if manager.compressor.NeedsCompression() {
		manager.logger.Debug("context compression due",
			"session", manager.metadata.SessionID,
			"estimate", manager.compressor.Estimate(),
			"limit", manager.compressor.Limit(),
		)
	}
}

func (manager *Manager) writeMetadataLocked() {
	if manager.store == nil {
		return
	}
	manager.metadata.UpdatedAt = manager.clock.Now().UTC()
	if err := manager.store.WriteMetadata(manager.metadata); err != nil {
		manager.logger.Warn("writing session metadata failed",
			"session", manager.metadata.SessionID,
			"error", err,
		)
	}
}
