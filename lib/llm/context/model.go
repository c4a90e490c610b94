// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"sort"
	"strings"
)

// modelRegistry maps model identifiers to their context window sizes
// in tokens. Values are from provider documentation; configuration can
// always override them.
var modelRegistry = map[string]int{
	// Anthropic.
	"claude-opus-4":     200_000,
	"claude-sonnet-4":   200_000,
	"claude-haiku-4":    200_000,
	"claude-3-7-sonnet": 200_000,
	"claude-3-5-sonnet": 200_000,
	"claude-3.5-sonnet": 200_000,
	"claude-3-5-haiku":  200_000,
	"claude-3.5-haiku":  200_000,
	"claude-3-haiku":    200_000,
	"claude-3-opus":     200_000,

	// OpenAI.
	"gpt-5":       400_000,
	"gpt-4.1":     1_047_576,
	"gpt-4o":      128_000,
	"gpt-4o-mini": 128_000,
	"gpt-4-turbo": 128_000,
	"gpt-4":       8_192,
	"o1":          200_000,
	"o3":          200_000,
	"o3-mini":     200_000,

	// DeepSeek.
	"deepseek-chat":      64_000,
	"deepseek-chat-v3.1": 128_000,
	"deepseek-reasoner":  64_000,

	// Google.
	"gemini-2.0-flash": 1_048_576,
	"gemini-2.5-pro":   1_048_576,
	"gemini-1.5-pro":   2_097_152,
}

// DefaultContextWindow is used for models the registry does not know.
const DefaultContextWindow = 200_000

// registryKeysLongestFirst orders keys so "gpt-4o-mini" is tried
// before "gpt-4o" and "gpt-4".
var registryKeysLongestFirst = func() []string {
	keys := make([]string, 0, len(modelRegistry))
	for key := range modelRegistry {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// ContextWindowForModel returns the context window size in tokens for
// a model identifier. Vendor prefixes ("openai/", "anthropic:") are
// ignored, and dated snapshots match their family
// ("claude-sonnet-4-20250514" matches "claude-sonnet-4"). Unknown
// models get [DefaultContextWindow].
func ContextWindowForModel(model string) int {
	name := strings.TrimSuffix(strings.ToLower(model), ":free")
	if index := strings.LastIndex(name, "/"); index >= 0 {
		name = name[index+1:]
	}
	if _, after, found := strings.Cut(name, ":"); found {
		name = after
	}

	if window, found := modelRegistry[name]; found {
		return window
	}
	for _, key := range registryKeysLongestFirst {
		if strings.HasPrefix(name, key) {
			return modelRegistry[key]
		}
	}
	return DefaultContextWindow
}
