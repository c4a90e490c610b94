// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input, want string
	}{
		{"", ""},
		{"gpt-4o", "gpt-4o"},
		{"OpenAI/GPT-4o", "gpt-4o"},
		{"anthropic/claude-3.5-sonnet", "claude-3.5-sonnet"},
		{"anthropic:claude-3-5-sonnet-latest", "claude-3-5-sonnet-latest"},
		{"google-gla:gemini-1.5-pro", "gemini-1.5-pro"},
		{"deepseek/deepseek-chat-v3.1:free", "deepseek-chat-v3.1:free"},
	}
	for _, test := range tests {
		if got := NormalizeModelName(test.input); got != test.want {
			t.Errorf("NormalizeModelName(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestCalculate(t *testing.T) {
	t.Parallel()

	table := DefaultPriceTable()
	usage := Usage{InputTokens: 1000, OutputTokens: 500, Requests: 1}

	tests := []struct {
		name     string
		model    string
		wantCost float64
	}{
		{"exact", "gpt-4o", 2.50 + 5.00},
		{"slash prefix", "openai/gpt-4o-mini", 0.15 + 0.30},
		{"colon prefix", "anthropic:claude-3-5-sonnet-latest", 3.00 + 7.50},
		{"free tier", "deepseek/deepseek-chat-v3.1:free", 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			costs := table.Calculate(usage, test.model)
			if costs.CostUSD == nil {
				t.Fatalf("CostUSD = nil for %q", test.model)
			}
			if math.Abs(*costs.CostUSD-test.wantCost) > 1e-9 {
				t.Errorf("CostUSD = %v, want %v", *costs.CostUSD, test.wantCost)
			}
			if costs.TotalTokens != 1500 {
				t.Errorf("TotalTokens = %d, want 1500", costs.TotalTokens)
			}
		})
	}
}

func TestCalculateUnknownModel(t *testing.T) {
	t.Parallel()

	table := DefaultPriceTable()
	for _, model := range []string{"", "zz-model-nobody-sells"} {
		costs := table.Calculate(Usage{InputTokens: 10, OutputTokens: 5}, model)
		if costs.CostUSD != nil {
			t.Errorf("Calculate(%q).CostUSD = %v, want nil", model, *costs.CostUSD)
		}
		if costs.InputTokens != 10 || costs.OutputTokens != 5 || costs.TotalTokens != 15 {
			t.Errorf("Calculate(%q) tokens = %+v", model, costs)
		}
	}
}

func TestSessionCostsAdd(t *testing.T) {
	t.Parallel()

	table := DefaultPriceTable()
	var session SessionCosts

	records := []UsageCosts{
		table.Calculate(Usage{InputTokens: 1000, OutputTokens: 100, Requests: 1}, "gpt-4o"),
		table.Calculate(Usage{InputTokens: 2000, OutputTokens: 200, CachedTokens: 50, Requests: 2}, "gpt-4o"),
		table.Calculate(Usage{InputTokens: 300, OutputTokens: 30, Requests: 1}, "zz-unpriced"),
		table.Calculate(Usage{InputTokens: 7, OutputTokens: 3, Requests: 1}, ""),
	}
	for _, record := range records {
		session.Add(record)
	}

	var sum UsageCosts
	for _, name := range session.ModelNames() {
		sum.add(session.Models[name])
	}
	if sum.InputTokens != session.Total.InputTokens ||
		sum.OutputTokens != session.Total.OutputTokens ||
		sum.CachedTokens != session.Total.CachedTokens ||
		sum.TotalTokens != session.Total.TotalTokens ||
		sum.Requests != session.Total.Requests {
		t.Errorf("breakdown sum %+v != total %+v", sum, session.Total)
	}
	if session.Total.CostUSD == nil || sum.CostUSD == nil || math.Abs(*sum.CostUSD-*session.Total.CostUSD) > 1e-9 {
		t.Errorf("cost sum mismatch: total %v, breakdown %v", session.Total.CostUSD, sum.CostUSD)
	}

	if _, found := session.Models[UnknownModel]; !found {
		t.Errorf("usage without a model not booked under %q: %v", UnknownModel, session.ModelNames())
	}
	if session.Models["zz-unpriced"].CostUSD != nil {
		t.Error("unpriced model gained a cost")
	}
}

func TestSessionCostsNilCostNeverZero(t *testing.T) {
	t.Parallel()

	table := DefaultPriceTable()
	var session SessionCosts
	session.Add(table.Calculate(Usage{InputTokens: 10}, "zz-unpriced"))
	if session.Total.CostUSD != nil {
		t.Fatalf("total cost = %v after only unpriced usage, want nil", *session.Total.CostUSD)
	}

	session.Add(table.Calculate(Usage{InputTokens: 1000}, "gpt-4o"))
	if session.Total.CostUSD == nil || *session.Total.CostUSD != 2.5 {
		t.Fatalf("total cost = %v, want 2.5", session.Total.CostUSD)
	}

	session.Add(table.Calculate(Usage{InputTokens: 10}, "zz-unpriced"))
	if *session.Total.CostUSD != 2.5 {
		t.Errorf("unpriced usage changed the total cost to %v", *session.Total.CostUSD)
	}
}

func TestSessionCostsJSON(t *testing.T) {
	t.Parallel()

	cost := 0.123456789
	var session SessionCosts
	session.Add(UsageCosts{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Requests: 1, CostUSD: &cost, Model: "gpt-4o"})

	data, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"total":{"input_tokens":10,"output_tokens":5,"total_tokens":15,"requests":1,"cost_usd":0.123457},` +
		`"models":{"gpt-4o":{"input_tokens":10,"output_tokens":5,"total_tokens":15,"requests":1,"cost_usd":0.123457}}}`
	if string(data) != want {
		t.Errorf("Marshal =\n%s\nwant\n%s", data, want)
	}

	var decoded SessionCosts
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Models["gpt-4o"].Model != "gpt-4o" {
		t.Errorf("decoded model name = %q", decoded.Models["gpt-4o"].Model)
	}

	empty, _ := json.Marshal(SessionCosts{})
	if string(empty) != `{"total":{"input_tokens":0,"output_tokens":0,"total_tokens":0,"requests":0}}` {
		t.Errorf("empty session = %s", empty)
	}
}

func TestFormatTokenCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		count int64
		want  string
	}{
		{0, "0"},
		{5, "5"},
		{999, "999"},
		{1000, "1.0k"},
		{1234, "1.2k"},
		{31233, "31.2k"},
		{999_999, "1000.0k"},
		{1_000_000, "1.0M"},
		{1_234_567, "1.2M"},
	}
	for _, test := range tests {
		if got := FormatTokenCount(test.count); got != test.want {
			t.Errorf("FormatTokenCount(%d) = %q, want %q", test.count, got, test.want)
		}
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	tiny, cents := 0.004, 0.0123
	tests := []struct {
		name  string
		costs UsageCosts
		want  string
	}{
		{"no usage", UsageCosts{}, ""},
		{
			"cached and cost",
			UsageCosts{InputTokens: 1200, OutputTokens: 340, CachedTokens: 50, TotalTokens: 1540, Requests: 2, CostUSD: &cents},
			"Tokens: 1.2k in, 340 out, 50 cached (1.5k total) • Requests: 2 • Cost: $0.0123",
		},
		{
			"tiny cost",
			UsageCosts{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Requests: 1, CostUSD: &tiny},
			"Tokens: 10 in, 5 out (15 total) • Requests: 1 • Cost: <$0.01",
		},
		{
			"unknown cost",
			UsageCosts{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Requests: 1},
			"Tokens: 10 in, 5 out (15 total) • Requests: 1",
		},
	}
	for _, test := range tests {
		if got := Summary(test.costs); got != test.want {
			t.Errorf("%s: Summary() = %q, want %q", test.name, got, test.want)
		}
	}
}

func TestLoadPriceTable(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	path := filepath.Join(directory, "pricing.toml")
	content := `
[models."gpt-4o"]
input = 1.0
output = 2.0

[models."openai/zz-new-model"]
input = 0.5
output = 0.5
cached = 0.1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadPriceTable(path)
	if err != nil {
		t.Fatalf("LoadPriceTable: %v", err)
	}
	if price, _ := table.Lookup("gpt-4o"); price.Input != 1.0 {
		t.Errorf("override not applied: %+v", price)
	}
	price, found := table.Lookup("zz-new-model")
	if !found || price.Cached != 0.1 {
		t.Errorf("Lookup(zz-new-model) = %+v, %v", price, found)
	}
	if _, found := table.Lookup("gpt-4o-mini"); !found {
		t.Error("built-in entries lost after override")
	}

	missing, err := LoadPriceTable(filepath.Join(directory, "absent.toml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if missing.Len() != DefaultPriceTable().Len() {
		t.Errorf("missing file table has %d entries, want %d", missing.Len(), DefaultPriceTable().Len())
	}

	bad := filepath.Join(directory, "bad.toml")
	os.WriteFile(bad, []byte("[models\n"), 0o644)
	if _, err := LoadPriceTable(bad); err == nil {
		t.Error("malformed file accepted")
	}
}
