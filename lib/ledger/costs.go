// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"encoding/json"
	"math"
	"sort"
)

// UnknownModel is the breakdown key for usage reported without a
// model name.
const UnknownModel = "unknown"

// Usage is the raw token accounting of one agent run.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	CachedTokens int64 `json:"cached_tokens,omitempty"`
	Requests     int64 `json:"requests"`
}

// UsageCosts is a usage record priced against a [PriceTable]. CostUSD
// is nil when the model has no known price; an unknown cost is never
// reported as zero.
type UsageCosts struct {
	InputTokens  int64    `json:"input_tokens"`
	OutputTokens int64    `json:"output_tokens"`
	CachedTokens int64    `json:"cached_tokens,omitempty"`
	TotalTokens  int64    `json:"total_tokens"`
	Requests     int64    `json:"requests"`
	CostUSD      *float64 `json:"cost_usd,omitempty"`

	// Model is the name the usage was reported under. It is the
	// breakdown key and is not serialized inside the record.
	Model string `json:"-"`
}

// MarshalJSON rounds the cost to six decimal places.
func (costs UsageCosts) MarshalJSON() ([]byte, error) {
	type plain UsageCosts
	rounded := plain(costs)
	if costs.CostUSD != nil {
		value := math.Round(*costs.CostUSD*1e6) / 1e6
		rounded.CostUSD = &value
	}
	return json.Marshal(rounded)
}

// Calculate prices usage for model. Token counts are always filled in;
// CostUSD is set only when the table knows the model:
//
//	in/1000*input + out/1000*output + cached/1000*cached
func (table *PriceTable) Calculate(usage Usage, model string) UsageCosts {
	costs := UsageCosts{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CachedTokens: usage.CachedTokens,
		TotalTokens:  usage.InputTokens + usage.OutputTokens,
		Requests:     usage.Requests,
		Model:        model,
	}
	if model == "" {
		return costs
	}
	price, found := table.Lookup(model)
	if !found {
		return costs
	}
	cost := float64(usage.InputTokens)/1000*price.Input +
		float64(usage.OutputTokens)/1000*price.Output +
		float64(usage.CachedTokens)/1000*price.Cached
	costs.CostUSD = &cost
	return costs
}

// add accumulates other into costs. A nil cost leaves the running cost
// as it was; the first known cost turns a nil running cost into a
// number.
func (costs *UsageCosts) add(other UsageCosts) {
	costs.InputTokens += other.InputTokens
	costs.OutputTokens += other.OutputTokens
	costs.CachedTokens += other.CachedTokens
	costs.TotalTokens += other.TotalTokens
	costs.Requests += other.Requests
	if other.CostUSD != nil {
		sum := *other.CostUSD
		if costs.CostUSD != nil {
			sum += *costs.CostUSD
		}
		costs.CostUSD = &sum
	}
}

// SessionCosts aggregates usage across a session: a running total and
// a per-model breakdown. The total always equals the sum of the
// breakdown.
//
// SessionCosts is a plain value; callers serialize access.
type SessionCosts struct {
	Total  UsageCosts            `json:"total"`
	Models map[string]UsageCosts `json:"models,omitempty"`
}

// Add books one priced record into the total and the model's
// breakdown entry. Records without a model go under [UnknownModel].
func (session *SessionCosts) Add(costs UsageCosts) {
	key := costs.Model
	if key == "" {
		key = UnknownModel
	}
	if session.Models == nil {
		session.Models = make(map[string]UsageCosts)
	}

	entry := session.Models[key]
	entry.Model = key
	entry.add(costs)
	session.Models[key] = entry

	session.Total.add(costs)
}

// ModelNames returns the breakdown keys in lexical order.
func (session *SessionCosts) ModelNames() []string {
	names := make([]string, 0, len(session.Models))
	for name := range session.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON restores the model names that the record format keeps
// only as map keys.
func (session *SessionCosts) UnmarshalJSON(data []byte) error {
	type plain SessionCosts
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	for name, entry := range decoded.Models {
		entry.Model = name
		decoded.Models[name] = entry
	}
	*session = SessionCosts(decoded)
	return nil
}
