// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// Profile is an authored agent definition. Profiles are JSONC files:
// JSON with // and /* */ comments and trailing commas.
//
//	{
//	  "name": "reviewer",
//	  "assistant_name": "Reviewer",
//	  // Kept short: the narrative is appended after compression.
//	  "system_prompt": "You review Go code for correctness.",
//	  "temperature": 0.2,
//	  "max_tokens": 4096,
//	  "models": ["gpt-4o", "deepseek-chat"],
//	}
type Profile struct {
	Name          string   `json:"name"`
	AssistantName string   `json:"assistant_name,omitempty"`
	SystemPrompt  string   `json:"system_prompt"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`

	// Models overrides the configured endpoint models, position by
	// position. An empty entry keeps the endpoint's own model.
	Models []string `json:"models,omitempty"`
}

// DefaultProfile is the general-purpose assistant used when no profile
// file is configured.
func DefaultProfile() Profile {
	temperature := 0.2
	return Profile{
		Name:          "default",
		AssistantName: "Assistant",
		SystemPrompt:  defaultSystemPrompt,
		Temperature:   &temperature,
	}
}

// ParseProfile decodes and validates a JSONC profile.
func ParseProfile(data []byte) (Profile, error) {
	var profile Profile
	if err := json.Unmarshal(jsonc.ToJSON(data), &profile); err != nil {
		return Profile{}, fmt.Errorf("parsing profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	if profile.AssistantName == "" {
		profile.AssistantName = "Assistant"
	}
	return profile, nil
}

// LoadProfile reads a JSONC profile from path. An empty path returns
// [DefaultProfile].
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("reading profile: %w", err)
	}
	profile, err := ParseProfile(data)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	return profile, nil
}

// Validate reports every problem with the profile at once.
func (profile Profile) Validate() error {
	var problems []error
	if strings.TrimSpace(profile.Name) == "" {
		problems = append(problems, errors.New("name is required"))
	}
	if strings.TrimSpace(profile.SystemPrompt) == "" {
		problems = append(problems, errors.New("system_prompt is required"))
	}
	if profile.Temperature != nil && (*profile.Temperature < 0 || *profile.Temperature > 2) {
		problems = append(problems, fmt.Errorf("temperature %v is outside [0, 2]", *profile.Temperature))
	}
	if profile.MaxTokens < 0 {
		problems = append(problems, fmt.Errorf("max_tokens %d is negative", profile.MaxTokens))
	}
	return errors.Join(problems...)
}

// Config builds the agent configuration for profile against model.
// maxTokens applies when the profile sets none.
func (profile Profile) Config(model string, maxTokens int) Config {
	if profile.MaxTokens > 0 {
		maxTokens = profile.MaxTokens
	}
	return Config{
		Name:          profile.Name,
		AssistantName: profile.AssistantName,
		SystemPrompt:  profile.SystemPrompt,
		Model:         model,
		MaxTokens:     maxTokens,
		Temperature:   profile.Temperature,
	}
}

// EndpointModel returns the model the profile wants at endpoint
// position index, or fallback when the profile does not say.
func (profile Profile) EndpointModel(index int, fallback string) string {
	if index < len(profile.Models) && profile.Models[index] != "" {
		return profile.Models[index]
	}
	return fallback
}
