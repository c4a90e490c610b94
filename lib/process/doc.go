// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers parley's main uses
// before the command logger exists, or after it has been torn down.
// Fatal reporting is the only raw stderr write outside the CLI
// renderers.
package process
