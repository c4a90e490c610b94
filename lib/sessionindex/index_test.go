// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionindex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/session"
)

var epoch = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := Open(filepath.Join(t.TempDir(), FileName), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := index.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return index
}

func cost(value float64) *float64 { return &value }

func summary(id, title string, active time.Time, records ...ledger.UsageCosts) session.Summary {
	result := session.Summary{
		ID:           id,
		Title:        title,
		CreatedAt:    active.Add(-time.Hour),
		LastActivity: active,
		MessageCount: 2 * len(records),
		Directory:    "/sessions/" + id,
	}
	for _, record := range records {
		result.Costs.Add(record)
		result.Model = record.Model
	}
	return result
}

func TestSyncAndSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := openTestIndex(t)

	summaries := []session.Summary{
		summary("20260301-090000", "Rust lifetimes explained", epoch.Add(-48*time.Hour)),
		summary("20260310-120000", "Planning a trip to Lisbon", epoch),
		summary("20260312-080000", "100% coverage goals", epoch.Add(-time.Hour)),
	}
	summaries[1].Compressed = true
	if err := index.Sync(ctx, summaries); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	found, err := index.Search(ctx, "LISBON", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].ID != "20260310-120000" || !found[0].Compressed {
		t.Fatalf("Search(LISBON) = %+v", found)
	}
	if !found[0].LastActivity.Equal(epoch) {
		t.Errorf("LastActivity = %v, want %v", found[0].LastActivity, epoch)
	}

	byID, err := index.Search(ctx, "0301", 0)
	if err != nil || len(byID) != 1 || byID[0].Title != "Rust lifetimes explained" {
		t.Errorf("Search by ID = %+v, %v", byID, err)
	}

	literal, err := index.Search(ctx, "100%", 0)
	if err != nil || len(literal) != 1 {
		t.Errorf("Search(100%%) = %+v, %v; %% must match literally", literal, err)
	}

	all, err := index.Search(ctx, "", 0)
	if err != nil {
		t.Fatalf("Search all: %v", err)
	}
	want := []string{"20260310-120000", "20260312-080000", "20260301-090000"}
	if len(all) != len(want) {
		t.Fatalf("Search all = %d results, want %d", len(all), len(want))
	}
	for position, id := range want {
		if all[position].ID != id {
			t.Errorf("result %d = %s, want %s", position, all[position].ID, id)
		}
	}

	limited, err := index.Search(ctx, "", 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("Search with limit 1 = %d results, %v", len(limited), err)
	}
}

func TestSyncRemovesMissingSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := openTestIndex(t)

	first := []session.Summary{
		summary("a", "kept", epoch, ledger.UsageCosts{Model: "gpt-4o", InputTokens: 10, Requests: 1}),
		summary("b", "gone", epoch, ledger.UsageCosts{Model: "gpt-4o", InputTokens: 99, Requests: 1}),
	}
	if err := index.Sync(ctx, first); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	first[0].Title = "renamed"
	if err := index.Sync(ctx, first[:1]); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	ids, err := index.Sessions(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("Sessions = %v, %v", ids, err)
	}
	found, err := index.Search(ctx, "renamed", 0)
	if err != nil || len(found) != 1 {
		t.Errorf("Search(renamed) = %+v, %v", found, err)
	}
	report, _, err := index.Usage(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if report.Total.InputTokens != 10 {
		t.Errorf("usage still counts a removed session: %+v", report.Total)
	}
}

func TestUsageAggregatesPerModel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := openTestIndex(t)

	err := index.Sync(ctx, []session.Summary{
		summary("old", "old", epoch.Add(-30*24*time.Hour),
			ledger.UsageCosts{Model: "gpt-4o", InputTokens: 1000, OutputTokens: 10, Requests: 1, CostUSD: cost(1)}),
		summary("mixed", "mixed", epoch,
			ledger.UsageCosts{Model: "gpt-4o", InputTokens: 100, OutputTokens: 20, Requests: 2, CostUSD: cost(0.5)},
			ledger.UsageCosts{Model: "local-llama", InputTokens: 40, OutputTokens: 4, Requests: 1}),
		summary("recent", "recent", epoch.Add(-time.Hour),
			ledger.UsageCosts{Model: "gpt-4o", InputTokens: 5, OutputTokens: 5, CachedTokens: 2, Requests: 1, CostUSD: cost(0.25)}),
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	report, sessions, err := index.Usage(ctx, epoch.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if sessions != 2 {
		t.Errorf("sessions = %d, want 2", sessions)
	}
	gpt := report.Models["gpt-4o"]
	if gpt.InputTokens != 105 || gpt.OutputTokens != 25 || gpt.CachedTokens != 2 || gpt.Requests != 3 {
		t.Errorf("gpt-4o usage = %+v", gpt)
	}
	if gpt.CostUSD == nil || *gpt.CostUSD != 0.75 {
		t.Errorf("gpt-4o cost = %v, want 0.75", gpt.CostUSD)
	}
	if local := report.Models["local-llama"]; local.CostUSD != nil || local.InputTokens != 40 {
		t.Errorf("unpriced model = %+v, want nil cost", local)
	}
	if report.Total.TotalTokens != 174 || report.Total.CostUSD == nil || *report.Total.CostUSD != 0.75 {
		t.Errorf("total = %+v", report.Total)
	}

	everything, sessions, err := index.Usage(ctx, time.Time{})
	if err != nil || sessions != 3 || everything.Total.Requests != 5 {
		t.Errorf("Usage(all) = %+v, %d sessions, %v", everything.Total, sessions, err)
	}
}

func TestRefreshReadsDirectories(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := openTestIndex(t)

	summaries, err := index.Refresh(ctx, t.TempDir())
	if err != nil || len(summaries) != 0 {
		t.Fatalf("Refresh of an empty root = %v, %v", summaries, err)
	}
	ids, err := index.Sessions(ctx)
	if err != nil || len(ids) != 0 {
		t.Errorf("Sessions = %v, %v", ids, err)
	}
}
