// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui holds the look shared by parley's terminal output: the
// color theme and the lipgloss renderer setup. The transcript renderer
// and the session picker both draw with it, so a resumed conversation
// and the list it was picked from use the same palette.
package tui
