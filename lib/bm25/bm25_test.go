// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bm25

import (
	"slices"
	"testing"
)

func sessionDocument(id, title, conversation string) Document {
	return Document{ID: id, Fields: []Field{
		{Text: title, Weight: 3},
		{Text: conversation, Weight: 1},
	}}
}

var corpus = []Document{
	sessionDocument("retries", "Retry backoff design",
		"How should the client back off between retries? Exponential backoff with jitter."),
	sessionDocument("config", "Config loading",
		"Where does the YAML config come from? The PARLEY_CONFIG variable or the home directory."),
	sessionDocument("sqlite", "Catalog storage",
		"Should the catalog use SQLite? A single file database keeps retries simple."),
	sessionDocument("empty", "", ""),
}

func ids(results []Result) []string {
	var names []string
	for _, result := range results {
		names = append(names, result.ID)
	}
	return names
}

func TestSearch(t *testing.T) {
	t.Parallel()
	index := New(corpus)
	if index.Len() != 4 {
		t.Fatalf("Len = %d", index.Len())
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"backoff", []string{"retries"}},
		{"yaml config", []string{"config"}},
		{"SQLite", []string{"sqlite"}},
		// The title weight puts the session named for retries first.
		{"retry retries", []string{"retries", "sqlite"}},
		{"kubernetes", nil},
		{"", nil},
		{"a ? !", nil},
	}
	for _, test := range tests {
		if got := ids(index.Search(test.query, 0)); !slices.Equal(got, test.want) {
			t.Errorf("Search(%q) = %v, want %v", test.query, got, test.want)
		}
	}
}

func TestSearchLimitAndOrder(t *testing.T) {
	t.Parallel()
	index := New(corpus)

	results := index.Search("retries catalog config", 2)
	if len(results) != 2 {
		t.Fatalf("limit ignored: %v", ids(results))
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not best first: %+v", results)
	}
}

func TestSearchTiesKeepIndexOrder(t *testing.T) {
	t.Parallel()
	index := New([]Document{
		sessionDocument("first", "notes", ""),
		sessionDocument("second", "notes", ""),
	})
	if got := ids(index.Search("notes", 0)); !slices.Equal(got, []string{"first", "second"}) {
		t.Errorf("tie order = %v", got)
	}
}

func TestZeroWeightFieldIgnored(t *testing.T) {
	t.Parallel()
	index := New([]Document{{ID: "hidden", Fields: []Field{{Text: "secret words", Weight: 0}}}})
	if results := index.Search("secret", 0); len(results) != 0 {
		t.Errorf("zero-weight field matched: %v", results)
	}
}

func TestNoDocuments(t *testing.T) {
	t.Parallel()
	if results := New(nil).Search("anything", 5); len(results) != 0 {
		t.Errorf("empty index returned %v", results)
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()
	got := Tokenize("Retry-After: 30s, naïve JSON_parse a I")
	want := []string{"retry", "after", "30s", "naïve", "json", "parse"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}
