// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/parley/lib/llm"
)

// DefaultThreshold is the fraction of the context window at which
// compression triggers.
const DefaultThreshold = 0.8

// narrativeHeader introduces the compressed narrative, both in the
// system prompt and when a previous narrative is fed back to the
// summarizer.
const narrativeHeader = "Previous Session Context: "

// Summarizer condenses conversation turns into a narrative. The first
// turn may carry the previous narrative, prefixed with
// "Previous Session Context: ", so the new narrative subsumes it.
type Summarizer interface {
	Summarize(ctx context.Context, turns []llm.Message) (string, error)
}

// CompressorConfig configures a [Compressor].
type CompressorConfig struct {
	// ContextWindow is the model's context window in tokens.
	// Required.
	ContextWindow int

	// Threshold is the fraction of ContextWindow at which
	// compression is needed. Zero means [DefaultThreshold].
	Threshold float64

	// Summarizer produces narratives. Required.
	Summarizer Summarizer

	// Estimator defaults to a fresh [CharEstimator].
	Estimator TokenEstimator
}

// Compressor tracks how much of the context window the conversation
// occupies since the last compression and, when asked, replaces that
// span with a summarizer-produced narrative.
//
// The estimate is the sum of provider-reported input and output
// tokens since the last compression, plus estimates for the narrative
// and for user text no usage record has covered yet.
//
// Compressor is not safe for concurrent use; the session manager
// serializes access.
type Compressor struct {
	contextWindow int
	threshold     float64
	summarizer    Summarizer
	estimator     TokenEstimator

	reportedTokens int64
	pendingText    []string
	narrative      string
	failed         bool
}

// NewCompressor validates config and returns a Compressor with no
// narrative.
func NewCompressor(config CompressorConfig) (*Compressor, error) {
	if config.ContextWindow <= 0 {
		return nil, fmt.Errorf("context: context window must be positive, got %d", config.ContextWindow)
	}
	if config.Summarizer == nil {
		return nil, errors.New("context: summarizer is required")
	}
	threshold := config.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("context: threshold must be in (0, 1], got %v", threshold)
	}
	estimator := config.Estimator
	if estimator == nil {
		estimator = NewCharEstimator()
	}
	return &Compressor{
		contextWindow: config.ContextWindow,
		threshold:     threshold,
		summarizer:    config.Summarizer,
		estimator:     estimator,
	}, nil
}

// Restore loads state replayed from a session log: the latest
// narrative and the usage reported after it.
func (compressor *Compressor) Restore(narrative string, reportedTokens int64) {
	compressor.narrative = narrative
	compressor.reportedTokens = reportedTokens
	compressor.pendingText = nil
}

// RecordText accounts for text entering the conversation before the
// provider has reported usage for it.
func (compressor *Compressor) RecordText(text string) {
	compressor.pendingText = append(compressor.pendingText, text)
}

// RecordUsage adds provider-reported usage. sent is the message slice
// the usage applies to and may be nil; when present it calibrates the
// estimator.
func (compressor *Compressor) RecordUsage(sent []llm.Message, usage llm.Usage) {
	compressor.reportedTokens += usage.InputTokens + usage.OutputTokens
	compressor.pendingText = nil
	if len(sent) > 0 {
		compressor.estimator.RecordUsage(sent, usage.InputTokens)
	}
}

// Estimate returns the current token estimate.
func (compressor *Compressor) Estimate() int64 {
	estimate := compressor.reportedTokens + int64(compressor.estimator.EstimateText(compressor.narrative))
	for _, text := range compressor.pendingText {
		estimate += int64(compressor.estimator.EstimateText(text))
	}
	return estimate
}

// ReportedTokens returns the provider-reported usage booked since the
// last compression. The session persists it so a resumed compressor
// starts from the same point.
func (compressor *Compressor) ReportedTokens() int64 {
	return compressor.reportedTokens
}

// Limit is the estimate at which compression is needed.
func (compressor *Compressor) Limit() int64 {
	return int64(compressor.threshold * float64(compressor.contextWindow))
}

// NeedsCompression reports whether the estimate has reached the limit.
// It stays true after a failed attempt until a later attempt succeeds.
func (compressor *Compressor) NeedsCompression() bool {
	return compressor.failed || compressor.Estimate() >= compressor.Limit()
}

// Narrative returns the current compressed narrative, empty if the
// conversation was never compressed.
func (compressor *Compressor) Narrative() string {
	return compressor.narrative
}

// SystemPrompt returns base extended with the narrative.
func (compressor *Compressor) SystemPrompt(base string) string {
	return WithNarrative(base, compressor.narrative)
}

// WithNarrative appends a compressed narrative to a system prompt.
// An empty narrative leaves the prompt unchanged.
func WithNarrative(base, narrative string) string {
	if narrative == "" {
		return base
	}
	return base + "\n\n" + narrativeHeader + narrative
}

// Compress summarizes turns, which must be every turn since the last
// compression, into a new narrative. On success the counters reset and
// the narrative is returned. On failure the state is unchanged apart
// from the needs-compression flag, which stays set so the next check
// retries.
func (compressor *Compressor) Compress(ctx context.Context, turns []llm.Message) (string, error) {
	input := make([]llm.Message, 0, len(turns)+1)
	if compressor.narrative != "" {
		input = append(input, llm.UserMessage(narrativeHeader+compressor.narrative))
	}
	input = append(input, turns...)
	if len(input) == 0 {
		return "", errors.New("context: nothing to compress")
	}

	narrative, err := compressor.summarizer.Summarize(ctx, input)
	if err == nil && narrative == "" {
		err = errors.New("summarizer returned an empty narrative")
	}
	if err != nil {
		compressor.failed = true
		return "", fmt.Errorf("context: summarizing %d turns: %w", len(turns), err)
	}

	compressor.narrative = narrative
	compressor.reportedTokens = 0
	compressor.pendingText = nil
	compressor.failed = false
	return narrative, nil
}
