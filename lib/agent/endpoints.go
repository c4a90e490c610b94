// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/bureau-foundation/parley/lib/llm"
)

// EndpointSpec describes one OpenAI-compatible model endpoint.
type EndpointSpec struct {
	Name    string
	BaseURL string

	// APIKeyEnv names the environment variable holding the key. Empty
	// means the endpoint needs no key (a local server).
	APIKeyEnv string

	Model string
}

// ProviderOptions configures [NewProvider].
type ProviderOptions struct {
	// LookupEnv reads API keys. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewProvider builds the fallback chain for specs, in order, with the
// profile's model overrides applied. An endpoint whose key variable is
// unset or empty is skipped with a log line. When nothing is left the
// error is [llm.ErrNoProvider].
func NewProvider(specs []EndpointSpec, profile Profile, options ProviderOptions) (*llm.Fallback, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	lookupEnv := options.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	var endpoints []llm.Endpoint
	for index, spec := range specs {
		var key string
		if spec.APIKeyEnv != "" {
			value, found := lookupEnv(spec.APIKeyEnv)
			if !found || value == "" {
				logger.Debug("skipping endpoint without API key",
					"endpoint", spec.Name,
					"variable", spec.APIKeyEnv,
				)
				continue
			}
			key = value
		}
		endpoints = append(endpoints, llm.Endpoint{
			Name:  spec.Name,
			Model: profile.EndpointModel(index, spec.Model),
			Provider: llm.NewOpenAI(llm.OpenAIConfig{
				Name:       spec.Name,
				BaseURL:    spec.BaseURL,
				APIKey:     key,
				HTTPClient: options.HTTPClient,
			}),
		})
	}
	return llm.NewFallback(logger, endpoints...)
}
