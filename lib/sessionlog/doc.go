// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionlog persists a chat session as a directory holding an
// append-only events.jsonl and a metadata.json summary record.
//
// The event log is the source of truth: in-memory session state is
// rebuilt by replaying it. Each append is a single open-write-sync-
// close cycle. Readers tolerate damage: a line that does not decode is
// skipped and counted, and the rest of the log still loads. The
// metadata record is replaced whole through a temp-file rename.
package sessionlog
