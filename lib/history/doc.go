// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history keeps the prompt history shared by every session:
// one JSON object per line in <root>/history.jsonl. A [History] loads
// the file once, appends each sent prompt, and implements the
// golang.org/x/term History interface so the interactive prompt can
// browse earlier entries with the arrow keys.
package history
