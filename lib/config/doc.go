// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads parley's YAML configuration.
//
// The file is found, in order, through the --config flag, the
// PARLEY_CONFIG environment variable, or ~/.parley/config.yaml when
// that exists. With none of these, [Default] applies unchanged. An
// explicitly named file that cannot be read is an error; the implicit
// one is only used when present.
//
// After loading, ${HOME}, ${PARLEY_ROOT} and ${VAR:-default} patterns
// are expanded in path fields and endpoint URLs. Environment variables
// never override configured values otherwise; API keys are the one
// thing read from the environment, by name, at provider construction.
//
// Key exports:
//
//   - [Config] -- paths, session, endpoints and logging sections
//   - [Default] -- built-in values
//   - [Load] and [LoadFile] -- the entry points
//   - [Config.Validate] -- reports every problem at once
package config
