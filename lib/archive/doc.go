// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive moves a session between machines as a single file.
//
// A bundle is one CBOR-encoded [Bundle] holding the session's event
// log, metadata, and compression checkpoints, compressed with zstd.
// When recipients are given the compressed stream is encrypted with
// age to their X25519 public keys; [Import] recognizes the age header
// and asks for identities only then. Checkpoints are re-verified
// against their hashes on import, so a damaged bundle cannot plant a
// checkpoint whose content does not match its name.
package archive
