// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bm25

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strings"
)

// Okapi parameters. epsilon floors the IDF of terms present in nearly
// every document.
const (
	paramK1      = 1.2
	paramB       = 0.75
	paramEpsilon = 0.25
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Field is weighted text. A weight of zero or less leaves the field
// out of the document.
type Field struct {
	Text   string
	Weight int
}

// Document is identified by ID in results. The ID is not scored.
type Document struct {
	ID     string
	Fields []Field
}

// Result is one ranked hit.
type Result struct {
	ID    string
	Score float64
}

// Index is an immutable BM25 index.
type Index struct {
	ids             []string
	termFrequencies []map[string]int
	lengths         []int
	averageLength   float64
	idf             map[string]float64
}

// New indexes documents.
func New(documents []Document) *Index {
	index := &Index{
		ids:             make([]string, len(documents)),
		termFrequencies: make([]map[string]int, len(documents)),
		lengths:         make([]int, len(documents)),
		idf:             make(map[string]float64),
	}

	documentFrequency := make(map[string]int)
	var totalLength int
	for position, document := range documents {
		index.ids[position] = document.ID
		frequencies := make(map[string]int)
		for _, field := range document.Fields {
			if field.Weight <= 0 {
				continue
			}
			for _, token := range Tokenize(field.Text) {
				frequencies[token] += field.Weight
				index.lengths[position] += field.Weight
			}
		}
		for token := range frequencies {
			documentFrequency[token]++
		}
		index.termFrequencies[position] = frequencies
		totalLength += index.lengths[position]
	}
	if len(documents) > 0 {
		index.averageLength = float64(totalLength) / float64(len(documents))
	}

	count := float64(len(documents))
	for token, frequency := range documentFrequency {
		idf := math.Log(1 + (count-float64(frequency)+0.5)/(float64(frequency)+0.5))
		if idf <= 0 {
			idf = paramEpsilon
		}
		index.idf[token] = idf
	}
	return index
}

// Len returns the number of indexed documents.
func (index *Index) Len() int {
	return len(index.ids)
}

// Search returns up to limit documents that share a term with query,
// best first. Equal scores keep indexing order. A limit of zero or
// less returns every hit.
func (index *Index) Search(query string, limit int) []Result {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var results []Result
	for position, id := range index.ids {
		if score := index.score(position, queryTokens); score > 0 {
			results = append(results, Result{ID: id, Score: score})
		}
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (index *Index) score(position int, queryTokens []string) float64 {
	frequencies := index.termFrequencies[position]
	lengthRatio := float64(index.lengths[position]) / index.averageLength

	var score float64
	for _, token := range queryTokens {
		frequency := float64(frequencies[token])
		if frequency == 0 {
			continue
		}
		// idf * tf*(k1+1) / (tf + k1*(1-b+b*dl/avgdl))
		score += index.idf[token] * frequency * (paramK1 + 1) /
			(frequency + paramK1*(1-paramB+paramB*lengthRatio))
	}
	return score
}

// Tokenize lowercases text and splits it into letter and digit runs,
// dropping single-character tokens.
func Tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := matches[:0]
	for _, match := range matches {
		if len([]rune(match)) >= 2 {
			tokens = append(tokens, match)
		}
	}
	return tokens
}
