// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds parley's shared CBOR configuration.
//
// parley uses two serialization formats with a clear boundary:
//
//   - JSON for files a person might open: events.jsonl,
//     metadata.json, history.jsonl, and CLI --json output.
//   - CBOR for binary records: compression checkpoints and session
//     export bundles.
//
// Every package that writes CBOR goes through this package so that
// records encode identically. The encoder uses Core Deterministic
// Encoding, so the same record always produces the same bytes and a
// hash over the encoding is a stable content address.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// fxamacker/cbor reads `json` struct tags when `cbor` tags are absent.
// Types shared with the JSON files carry only `json` tags; types that
// exist only in CBOR records carry only `cbor` tags.
package codec
