// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the parley binary.
//
// A [Command] tree dispatches on the first positional argument, parses
// pflag flags per command, and suggests the closest command or flag
// when the user mistypes one. Parameter structs declare their flags
// with struct tags (see [BindFlags]), and embedding [JSONOutput] adds
// a --json switch.
//
// Commands receive a context that is cancelled on SIGTERM and a
// logger built by [NewCommandLogger]. A command that has already
// explained a failure to the user returns [ExitError] so main exits
// without printing a second message.
package cli
