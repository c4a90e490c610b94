// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger prices token usage and aggregates it per session.
//
// A [PriceTable] maps normalized model names to per-1K-token rates.
// The built-in table can be extended or overridden with a TOML file
// (see [LoadPriceTable]). [PriceTable.Calculate] turns a [Usage] into
// [UsageCosts]; the cost is left nil for models the table does not
// know, so "free" and "unpriced" stay distinguishable. [SessionCosts]
// accumulates records into a total and a per-model breakdown and
// serializes in the layout stored in session metadata.
package ledger
