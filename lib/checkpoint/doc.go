// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package checkpoint archives the turns a context compression
// replaced.
//
// Compression never deletes history: the session's events.jsonl keeps
// every turn. A checkpoint additionally captures the exact span handed
// to the summarizer, with the narratives before and after, as one
// deterministic CBOR record. The record is addressed by a keyed BLAKE3
// hash of its encoding and stored compressed: LZ4 for records under
// 4 KiB, zstd otherwise, raw when neither helps. Reads verify the
// hash, so a damaged file is reported rather than decoded.
//
// The context_compression event carries the hash and compression name,
// which together form a [Ref].
package checkpoint
