// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ModelPrice holds per-model rates in USD per 1,000 tokens.
type ModelPrice struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`

	// Cached is the rate for cache-read input tokens. Zero when the
	// model has no separate cache pricing.
	Cached float64 `toml:"cached"`
}

// builtinPrices is the January 2025 price list. Keys are normalized
// when the table is built, so vendor-prefixed entries collapse onto
// their bare names.
var builtinPrices = map[string]ModelPrice{
	// Anthropic.
	"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00},
	"claude-3-5-sonnet-latest":   {Input: 3.00, Output: 15.00},
	"claude-sonnet-4-20250514":   {Input: 15.00, Output: 75.00},
	"claude-3-5-haiku-20241022":  {Input: 0.25, Output: 1.25},
	"claude-3-5-haiku-latest":    {Input: 0.25, Output: 1.25},
	"claude-3-haiku-20240307":    {Input: 0.25, Output: 1.25},

	// OpenAI.
	"gpt-4o":            {Input: 2.50, Output: 10.00},
	"gpt-4o-2024-11-20": {Input: 2.50, Output: 10.00},
	"gpt-5-2025-08-07":  {Input: 5.00, Output: 20.00},
	"gpt-4o-mini":       {Input: 0.15, Output: 0.60},
	"gpt-4-turbo":       {Input: 10.00, Output: 30.00},

	// OpenRouter.
	"deepseek/deepseek-chat-v3.1:free": {Input: 0, Output: 0},
	"deepseek/deepseek-chat-v3.1":      {Input: 0.14, Output: 0.28},
	"anthropic/claude-3.5-sonnet":      {Input: 3.00, Output: 15.00},
	"anthropic/claude-3.5-haiku":       {Input: 0.25, Output: 1.25},
	"openai/gpt-4o":                    {Input: 2.50, Output: 10.00},
	"openai/gpt-4o-mini":               {Input: 0.15, Output: 0.60},
}

var (
	vendorSlashPrefix = regexp.MustCompile(`(?i)^(anthropic|openai|google|deepseek)/`)
	vendorColonPrefix = regexp.MustCompile(`(?i)^(anthropic:|openai:|google-gla:|deepseek/)`)
)

// NormalizeModelName strips vendor routing prefixes ("openai/",
// "anthropic:", "google-gla:") and lower-cases the result. The empty
// string is returned unchanged.
func NormalizeModelName(name string) string {
	if name == "" {
		return name
	}
	name = vendorSlashPrefix.ReplaceAllString(name, "")
	name = vendorColonPrefix.ReplaceAllString(name, "")
	return strings.ToLower(name)
}

// PriceTable resolves model names to prices. It is immutable once
// built and safe for concurrent use.
type PriceTable struct {
	prices map[string]ModelPrice

	// ordered holds the keys longest first, then lexically, so the
	// partial-match fallback is deterministic.
	ordered []string
}

// NewPriceTable builds a table from layers of raw entries. Keys are
// normalized, and entries in later layers replace earlier ones. Within
// one layer, when two keys normalize to the same name the lexically
// later raw key wins.
func NewPriceTable(layers ...map[string]ModelPrice) *PriceTable {
	table := &PriceTable{prices: make(map[string]ModelPrice)}
	for _, entries := range layers {
		raw := make([]string, 0, len(entries))
		for key := range entries {
			raw = append(raw, key)
		}
		sort.Strings(raw)
		for _, key := range raw {
			table.prices[NormalizeModelName(key)] = entries[key]
		}
	}

	for key := range table.prices {
		table.ordered = append(table.ordered, key)
	}
	sort.Slice(table.ordered, func(i, j int) bool {
		left, right := table.ordered[i], table.ordered[j]
		if len(left) != len(right) {
			return len(left) > len(right)
		}
		return left < right
	})
	return table
}

// DefaultPriceTable returns the built-in price list.
func DefaultPriceTable() *PriceTable {
	return NewPriceTable(builtinPrices)
}

// pricingFile is the TOML layout of a price override file:
//
//	[models."gpt-4.1"]
//	input = 2.0
//	output = 8.0
//	cached = 0.5
type pricingFile struct {
	Models map[string]ModelPrice `toml:"models"`
}

// LoadPriceTable returns the built-in price list with the entries of
// the TOML file at path layered over it. An empty path or a missing
// file yields the built-in list alone.
func LoadPriceTable(path string) (*PriceTable, error) {
	if path == "" {
		return DefaultPriceTable(), nil
	}

	var file pricingFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultPriceTable(), nil
		}
		return nil, fmt.Errorf("ledger: decoding price file %s: %w", path, err)
	}
	for key, price := range file.Models {
		if price.Input < 0 || price.Output < 0 || price.Cached < 0 {
			return nil, fmt.Errorf("ledger: price file %s: negative rate for %q", path, key)
		}
	}
	return NewPriceTable(builtinPrices, file.Models), nil
}

// Lookup finds the price for a model. The name is normalized, then
// matched exactly. Failing that, the first key (longest first) that
// contains or is contained in the name matches. The containment
// fallback is a weak heuristic: it can attribute a model to a sibling
// with different pricing, and callers that need certainty should add
// an explicit entry.
func (table *PriceTable) Lookup(name string) (ModelPrice, bool) {
	normalized := NormalizeModelName(name)
	if normalized == "" {
		return ModelPrice{}, false
	}
	if price, found := table.prices[normalized]; found {
		return price, true
	}
	for _, key := range table.ordered {
		if strings.Contains(normalized, key) || strings.Contains(key, normalized) {
			return table.prices[key], true
		}
	}
	return ModelPrice{}, false
}

// Len returns the number of distinct normalized entries.
func (table *PriceTable) Len() int {
	return len(table.prices)
}
