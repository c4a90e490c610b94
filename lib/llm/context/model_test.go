// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import "testing"

func TestContextWindowForModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  int
	}{
		{"gpt-4o", 128_000},
		{"gpt-4o-mini", 128_000},
		{"gpt-4", 8_192},
		{"openai/gpt-4o", 128_000},
		{"anthropic:claude-3-5-sonnet-latest", 200_000},
		{"claude-sonnet-4-20250514", 200_000},
		{"deepseek/deepseek-chat-v3.1:free", 128_000},
		{"gemini-1.5-pro", 2_097_152},
		{"totally-unknown-model-v99", DefaultContextWindow},
	}

	for _, test := range tests {
		t.Run(test.model, func(t *testing.T) {
			t.Parallel()
			if got := ContextWindowForModel(test.model); got != test.want {
				t.Errorf("ContextWindowForModel(%q) = %d, want %d", test.model, got, test.want)
			}
		})
	}
}
