// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import "github.com/bureau-foundation/parley/lib/llm"

// defaultCharactersPerToken is the initial ratio before calibration.
// BPE tokenizers average 3.5-4.5 characters per token on English text
// with code; 4.0 leans toward overestimating.
const defaultCharactersPerToken = 4.0

// defaultSmoothingFactor is the weight given to each new observation
// in the running average.
const defaultSmoothingFactor = 0.3

// messageOverheadCharacters approximates the role marker and JSON
// framing of one message ({"role":"user","content":"..."}).
const messageOverheadCharacters = 20

// TokenEstimator estimates token counts without a tokenizer.
type TokenEstimator interface {
	// EstimateText returns the estimated token count of raw text.
	EstimateText(text string) int

	// EstimateTokens returns the estimated token count of messages,
	// including per-message framing.
	EstimateTokens(messages []llm.Message) int

	// RecordUsage calibrates the estimator from a provider response.
	// messages is the slice that was sent; actualInputTokens is the
	// reported input token count.
	RecordUsage(messages []llm.Message, actualInputTokens int64)
}

// CharEstimator estimates token counts from character counts using a
// ratio calibrated from actual provider usage.
//
// The first observation replaces the default ratio outright. Later
// observations blend in through an exponential moving average so a
// single unusual turn does not swing the estimate. The ratio absorbs
// the system prompt overhead, which keeps early estimates on the high
// side.
type CharEstimator struct {
	charactersPerToken float64
	smoothingFactor    float64
	observationCount   int
}

// NewCharEstimator creates a CharEstimator at 4.0 characters per token
// with a smoothing factor of 0.3.
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{
		charactersPerToken: defaultCharactersPerToken,
		smoothingFactor:    defaultSmoothingFactor,
	}
}

// EstimateText rounds up; empty text is zero tokens.
func (estimator *CharEstimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}
	return estimator.fromCharacters(len(text))
}

// EstimateTokens rounds up.
func (estimator *CharEstimator) EstimateTokens(messages []llm.Message) int {
	return estimator.fromCharacters(messagesCharCount(messages))
}

func (estimator *CharEstimator) fromCharacters(characters int) int {
	return int(float64(characters)/estimator.charactersPerToken) + 1
}

// RecordUsage ignores observations with no tokens or no characters.
func (estimator *CharEstimator) RecordUsage(messages []llm.Message, actualInputTokens int64) {
	if actualInputTokens <= 0 {
		return
	}
	characters := messagesCharCount(messages)
	if characters == 0 {
		return
	}

	observed := float64(characters) / float64(actualInputTokens)
	estimator.observationCount++
	if estimator.observationCount == 1 {
		estimator.charactersPerToken = observed
		return
	}
	estimator.charactersPerToken = estimator.smoothingFactor*observed +
		(1.0-estimator.smoothingFactor)*estimator.charactersPerToken
}

// CharactersPerToken returns the current calibrated ratio.
func (estimator *CharEstimator) CharactersPerToken() float64 {
	return estimator.charactersPerToken
}

func messagesCharCount(messages []llm.Message) int {
	total := 0
	for i := range messages {
		total += len(messages[i].Text()) + messageOverheadCharacters
	}
	return total
}
