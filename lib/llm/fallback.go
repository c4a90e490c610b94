// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNoProvider is returned when no endpoint is usable, typically
// because none of the configured API key variables are set.
var ErrNoProvider = errors.New("llm: no usable model endpoint configured")

// Endpoint binds a provider to the model it should be asked for.
type Endpoint struct {
	Name     string
	Model    string
	Provider Provider
}

// Fallback is a [Provider] that tries an ordered list of endpoints.
// The first endpoint is the primary; later endpoints are used only
// when an earlier one fails with a connection error, a rate limit, or
// a server error. Client errors (bad request, auth) are returned
// immediately since another endpoint would not fare better with the
// same conversation.
//
// The Model field of incoming requests is replaced by each endpoint's
// model.
type Fallback struct {
	endpoints []Endpoint
	logger    *slog.Logger
}

// NewFallback returns a Fallback over endpoints, in order. Returns
// [ErrNoProvider] when endpoints is empty.
func NewFallback(logger *slog.Logger, endpoints ...Endpoint) (*Fallback, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoProvider
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fallback{endpoints: endpoints, logger: logger}, nil
}

// Primary returns the first endpoint.
func (fallback *Fallback) Primary() Endpoint {
	return fallback.endpoints[0]
}

// Endpoints returns the endpoints in fallback order.
func (fallback *Fallback) Endpoints() []Endpoint {
	return append([]Endpoint(nil), fallback.endpoints...)
}

// Complete implements [Provider].
func (fallback *Fallback) Complete(ctx context.Context, request Request) (*Response, error) {
	var failures []string
	for _, endpoint := range fallback.endpoints {
		request.Model = endpoint.Model
		response, err := endpoint.Provider.Complete(ctx, request)
		if err == nil {
			if response.Model == "" {
				response.Model = endpoint.Model
			}
			return response, nil
		}
		if !fallback.shouldFallBack(ctx, endpoint, err) {
			return nil, err
		}
		failures = append(failures, endpoint.Name+": "+err.Error())
	}
	return nil, fmt.Errorf("llm: all endpoints failed: %s", strings.Join(failures, "; "))
}

// Stream implements [Provider]. Fallback happens only while opening the
// stream; errors after the first event are the caller's to handle.
func (fallback *Fallback) Stream(ctx context.Context, request Request) (*EventStream, error) {
	var failures []string
	for _, endpoint := range fallback.endpoints {
		request.Model = endpoint.Model
		stream, err := endpoint.Provider.Stream(ctx, request)
		if err == nil {
			stream.SetModel(endpoint.Model)
			return stream, nil
		}
		if !fallback.shouldFallBack(ctx, endpoint, err) {
			return nil, err
		}
		failures = append(failures, endpoint.Name+": "+err.Error())
	}
	return nil, fmt.Errorf("llm: all endpoints failed: %s", strings.Join(failures, "; "))
}

func (fallback *Fallback) shouldFallBack(ctx context.Context, endpoint Endpoint, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var providerError *ProviderError
	if errors.As(err, &providerError) && !providerError.IsRateLimited() && !providerError.IsServerError() {
		return false
	}
	fallback.logger.Warn("model endpoint failed, trying next",
		"endpoint", endpoint.Name,
		"model", endpoint.Model,
		"error", err,
	)
	return true
}
