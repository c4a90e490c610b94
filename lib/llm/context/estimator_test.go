// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"math"
	"strings"
	"testing"

	"github.com/bureau-foundation/parley/lib/llm"
)

func TestCharEstimatorDefaultRatio(t *testing.T) {
	t.Parallel()

	estimator := NewCharEstimator()

	// 400 characters of text plus 20 framing = 420; 420/4 = 105, rounded up to 106.
	messages := []llm.Message{llm.UserMessage(strings.Repeat("x", 400))}
	if got := estimator.EstimateTokens(messages); got != 106 {
		t.Errorf("EstimateTokens() = %d, want 106", got)
	}

	if got := estimator.EstimateText(strings.Repeat("x", 400)); got != 101 {
		t.Errorf("EstimateText() = %d, want 101", got)
	}
	if got := estimator.EstimateText(""); got != 0 {
		t.Errorf("EstimateText(\"\") = %d, want 0", got)
	}
}

func TestCharEstimatorCalibration(t *testing.T) {
	t.Parallel()

	// "hello" + "world" = 10 characters + 40 framing = 50.
	messages := []llm.Message{llm.UserMessage("hello"), llm.AssistantMessage("world")}

	t.Run("first observation replaces default", func(t *testing.T) {
		t.Parallel()
		estimator := NewCharEstimator()
		estimator.RecordUsage(messages, 25)
		if got := estimator.CharactersPerToken(); got != 2.0 {
			t.Errorf("ratio = %v, want 2.0", got)
		}
		if got := estimator.EstimateTokens(messages); got != 26 {
			t.Errorf("EstimateTokens() = %d, want 26", got)
		}
	})

	t.Run("later observations blend", func(t *testing.T) {
		t.Parallel()
		estimator := NewCharEstimator()
		estimator.RecordUsage(messages, 25) // 2.0
		estimator.RecordUsage(messages, 5)  // 10.0
		want := 0.3*10.0 + 0.7*2.0
		if got := estimator.CharactersPerToken(); math.Abs(got-want) > 1e-9 {
			t.Errorf("ratio = %v, want %v", got, want)
		}
	})

	t.Run("non-positive tokens ignored", func(t *testing.T) {
		t.Parallel()
		estimator := NewCharEstimator()
		estimator.RecordUsage(messages, 0)
		estimator.RecordUsage(messages, -10)
		estimator.RecordUsage(nil, 100)
		if got := estimator.CharactersPerToken(); got != defaultCharactersPerToken {
			t.Errorf("ratio = %v, want default %v", got, defaultCharactersPerToken)
		}
	})
}
