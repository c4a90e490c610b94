// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"fmt"
	"strings"
)

// FormatTokenCount renders a token count compactly: 5 -> "5",
// 1234 -> "1.2k", 1234567 -> "1.2M".
func FormatTokenCount(count int64) string {
	switch {
	case count < 1000:
		return fmt.Sprintf("%d", count)
	case count < 1_000_000:
		return fmt.Sprintf("%.1fk", float64(count)/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(count)/1_000_000)
	}
}

// FormatCost renders a dollar amount with four decimals, or "<$0.01"
// for amounts under a cent. Nil renders as "unknown".
func FormatCost(cost *float64) string {
	switch {
	case cost == nil:
		return "unknown"
	case *cost > 0 && *cost < 0.01:
		return "<$0.01"
	default:
		return fmt.Sprintf("$%.4f", *cost)
	}
}

// Summary renders the one-line usage footer shown after each turn:
//
//	Tokens: 1.2k in, 340 out, 50 cached (1.6k total) • Requests: 2 • Cost: $0.0123
//
// Parts with nothing to report are left out, and an empty string is
// returned when no tokens have been used.
func Summary(costs UsageCosts) string {
	if costs.TotalTokens == 0 {
		return ""
	}

	var parts []string
	if costs.InputTokens > 0 || costs.OutputTokens > 0 {
		tokens := fmt.Sprintf("Tokens: %s in, %s out",
			FormatTokenCount(costs.InputTokens), FormatTokenCount(costs.OutputTokens))
		if costs.CachedTokens > 0 {
			tokens += ", " + FormatTokenCount(costs.CachedTokens) + " cached"
		}
		tokens += " (" + FormatTokenCount(costs.TotalTokens) + " total)"
		parts = append(parts, tokens)
	}
	if costs.Requests > 0 {
		parts = append(parts, fmt.Sprintf("Requests: %d", costs.Requests))
	}
	if costs.CostUSD != nil && *costs.CostUSD > 0 {
		parts = append(parts, "Cost: "+FormatCost(costs.CostUSD))
	}
	return strings.Join(parts, " • ")
}
