// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for parley packages.
//
// [RequireReceive] and [RequireClosed] wrap the timeout safety valve
// (select with a time.After fallback) so a test waiting on a goroutine
// fails instead of hanging. They are the only place in the test suite
// where wall-clock timeouts are used; everything else runs on
// lib/clock's fake clock.
//
// [WriteLines] and [ReadLines] build and inspect JSONL fixtures, the
// format of every append-only file parley keeps.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
