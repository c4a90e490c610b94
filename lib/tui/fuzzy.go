// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"sort"
	"sync"
	"unicode"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// FuzzyResult is one fzf match. Score is zero when the pattern does
// not match; Positions are the matched rune indices of the text in
// ascending order.
type FuzzyResult struct {
	Score     int
	Positions []int
}

var initAlgorithm sync.Once

// FuzzyMatch scores text against pattern with fzf's V2 algorithm,
// ignoring case. An empty pattern scores zero. slab may be nil; a
// caller matching many texts should reuse one from util.MakeSlab.
func FuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 {
		return FuzzyResult{}
	}
	initAlgorithm.Do(func() { algo.Init("default") })

	// Lowercasing rune by rune keeps positions aligned with text.
	runes := []rune(text)
	for index, character := range runes {
		runes[index] = unicode.ToLower(character)
	}
	lowered := make([]rune, len(pattern))
	for index, character := range pattern {
		lowered[index] = unicode.ToLower(character)
	}

	chars := util.RunesToChars(runes)
	result, positions := algo.FuzzyMatchV2(false, true, true, &chars, lowered, true, slab)
	if result.Start < 0 || result.Score <= 0 {
		return FuzzyResult{}
	}

	match := FuzzyResult{Score: result.Score}
	if positions != nil {
		match.Positions = append([]int(nil), (*positions)...)
		sort.Ints(match.Positions)
	}
	return match
}
