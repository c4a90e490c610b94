// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/parley/lib/agent"
)

// EnvironmentVariable names the file to load when no flag is given.
const EnvironmentVariable = "PARLEY_CONFIG"

// DefaultThreshold is the fraction of the context window that
// triggers compression.
const DefaultThreshold = 0.8

// Config is parley's configuration.
type Config struct {
	Paths     PathsConfig      `yaml:"paths"`
	Session   SessionConfig    `yaml:"session"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Logging   LoggingConfig    `yaml:"logging"`

	// Source is the file the config was loaded from, empty for the
	// defaults.
	Source string `yaml:"-"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root holds sessions, history.jsonl and the session catalog.
	// Default: ~/.parley
	Root string `yaml:"root"`

	// Profile is a JSONC agent profile. Empty uses the built-in one.
	Profile string `yaml:"profile"`

	// Pricing is a TOML file of price overrides merged over the
	// built-in table.
	Pricing string `yaml:"pricing"`
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	// ContextWindow is the token budget. Zero lets the model registry
	// decide.
	ContextWindow int `yaml:"context_window"`

	// CompressionThreshold is the fraction of the window that
	// triggers compression. Default: 0.8
	CompressionThreshold float64 `yaml:"compression_threshold"`

	// MaxOutputTokens caps each answer when the profile sets no
	// limit. Zero leaves it to the endpoint.
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// Checkpoints archives compressed turns. Default: true
	Checkpoints bool `yaml:"checkpoints"`
}

// EndpointConfig is one OpenAI-compatible endpoint. Endpoints are
// tried in order.
type EndpointConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// LoggingConfig configures the diagnostic log on stderr.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default: warn
	Level string `yaml:"level"`
}

// Default returns the built-in configuration: the three hosted
// endpoints in fallback order, each enabled only when its key variable
// is set.
func Default() *Config {
	homeDirectory, _ := os.UserHomeDir()
	return &Config{
		Paths: PathsConfig{
			Root: filepath.Join(homeDirectory, ".parley"),
		},
		Session: SessionConfig{
			CompressionThreshold: DefaultThreshold,
			Checkpoints:          true,
		},
		Endpoints: []EndpointConfig{
			{
				Name:      "anthropic",
				BaseURL:   "https://api.anthropic.com/v1",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				Model:     "claude-sonnet-4-20250514",
			},
			{
				Name:      "openai",
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
				Model:     "gpt-5-2025-08-07",
			},
			{
				Name:      "openrouter",
				BaseURL:   "https://openrouter.ai/api/v1",
				APIKeyEnv: "OPENROUTER_API_KEY",
				Model:     "deepseek/deepseek-chat-v3.1:free",
			},
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Load resolves the config file and loads it. explicit is the --config
// flag value; when empty, PARLEY_CONFIG is consulted, then
// ~/.parley/config.yaml if it exists. With no file at all the defaults
// are returned, expanded.
func Load(explicit string) (*Config, error) {
	if explicit != "" {
		return LoadFile(explicit)
	}
	if path := os.Getenv(EnvironmentVariable); path != "" {
		return LoadFile(path)
	}

	homeDirectory, err := os.UserHomeDir()
	if err == nil {
		implicit := filepath.Join(homeDirectory, ".parley", "config.yaml")
		if _, err := os.Stat(implicit); err == nil {
			return LoadFile(implicit)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	config := Default()
	config.expandVariables()
	return config, nil
}

// LoadFile loads configuration from path over the defaults. A file
// that lists endpoints replaces the default list entirely.
func LoadFile(path string) (*Config, error) {
	config := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// yaml.v3 replaces a slice rather than merging into it, so a
	// file's endpoint list supersedes the defaults.
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	config.Source = path
	config.expandVariables()
	return config, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths
// and endpoint URLs.
func (config *Config) expandVariables() {
	homeDirectory, _ := os.UserHomeDir()
	variables := map[string]string{
		"HOME": homeDirectory,
	}

	config.Paths.Root = expandVariables(config.Paths.Root, variables)
	variables["PARLEY_ROOT"] = config.Paths.Root

	config.Paths.Profile = expandVariables(config.Paths.Profile, variables)
	config.Paths.Pricing = expandVariables(config.Paths.Pricing, variables)
	for index := range config.Endpoints {
		config.Endpoints[index].BaseURL = expandVariables(config.Endpoints[index].BaseURL, variables)
	}
}

var variablePattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVariables(text string, variables map[string]string) string {
	return variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := variablePattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		// Known variables first, then the environment.
		if value, ok := variables[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem.
func (config *Config) Validate() error {
	var errs []error

	if config.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if config.Session.ContextWindow < 0 {
		errs = append(errs, fmt.Errorf("session.context_window %d is negative", config.Session.ContextWindow))
	}
	if threshold := config.Session.CompressionThreshold; threshold <= 0 || threshold > 1 {
		errs = append(errs, fmt.Errorf("session.compression_threshold %v must be in (0, 1]", threshold))
	}
	if config.Session.MaxOutputTokens < 0 {
		errs = append(errs, fmt.Errorf("session.max_output_tokens %d is negative", config.Session.MaxOutputTokens))
	}

	if len(config.Endpoints) == 0 {
		errs = append(errs, errors.New("at least one endpoint is required"))
	}
	names := make(map[string]bool, len(config.Endpoints))
	for index, endpoint := range config.Endpoints {
		field := fmt.Sprintf("endpoints[%d]", index)
		if endpoint.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", field))
		} else if names[endpoint.Name] {
			errs = append(errs, fmt.Errorf("%s.name %q is used twice", field, endpoint.Name))
		}
		names[endpoint.Name] = true
		if parsed, err := url.Parse(endpoint.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("%s.base_url %q is not an absolute URL", field, endpoint.BaseURL))
		}
		if endpoint.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", field))
		}
	}

	if _, err := config.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// LogLevel parses logging.level.
func (config *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(config.Logging.Level))); err != nil {
		return slog.LevelWarn, fmt.Errorf("logging.level %q must be debug, info, warn or error", config.Logging.Level)
	}
	return level, nil
}

// EndpointSpecs converts the endpoint list for agent.NewProvider.
func (config *Config) EndpointSpecs() []agent.EndpointSpec {
	specs := make([]agent.EndpointSpec, len(config.Endpoints))
	for index, endpoint := range config.Endpoints {
		specs[index] = agent.EndpointSpec{
			Name:      endpoint.Name,
			BaseURL:   endpoint.BaseURL,
			APIKeyEnv: endpoint.APIKeyEnv,
			Model:     endpoint.Model,
		}
	}
	return specs
}

// EnsurePaths creates the data root.
func (config *Config) EnsurePaths() error {
	if err := os.MkdirAll(config.Paths.Root, 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", config.Paths.Root, err)
	}
	return nil
}

// Marshal renders the effective configuration as YAML.
func (config *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return data, nil
}
