// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bm25 ranks documents against a free-text query with the
// Okapi BM25 function. A document is a set of weighted text fields;
// a field's weight repeats its tokens in the composite document, which
// is a cheap stand-in for per-field BM25 at the scale of one user's
// session history.
//
// An [Index] is built once and is safe for concurrent searches.
package bm25
