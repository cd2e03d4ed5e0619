// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

// Package router selects an LLM provider for a request based on task
// complexity and current budget pressure, with sequential fallback through
// the policy chain.
package router

import (
	"context"
	"log"
	"time"

	"polyroute/platform/orchestrator/cost"
	"polyroute/platform/orchestrator/llm"
)

// Governor is the budget interface the router consumes
type Governor interface {
	CurrentPressure() cost.Pressure
	RecordUsageDetail(detail cost.UsageDetail)
}

// Request is a routed completion request
type Request struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Complexity   llm.ComplexityTier
	RequestID    string
}

// Result is a successful routing outcome
type Result struct {
	Response *llm.GenerateResponse
	Provider string
	Pressure cost.Pressure
	// Attempts holds the failed provider calls that preceded the success,
	// in cascade order. Empty when the first provider succeeded.
	Attempts []Attempt
}

// Router routes requests through the policy-selected provider cascade
type Router struct {
	registry *llm.Registry
	policy   Policy
	governor Governor
	logger   *log.Logger
}

// New creates a router
func New(registry *llm.Registry, policy Policy, governor Governor, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		registry: registry,
		policy:   policy,
		governor: governor,
		logger:   logger,
	}
}

// Route sends the request to the first provider in the policy chain that
// can serve it.
//
// Budget pressure is read once at entry, so a single request observes a
// consistent chain even if spend recorded concurrently crosses a threshold.
// Any provider failure moves the cascade to the next entry; the error kind
// does not matter. On success the governor is charged for the reported
// token usage.
//
// Returns NoProviderAvailableError without calling any provider when the
// chain contains no available provider, and AllProvidersFailedError with
// the full attempt history when every available provider failed.
func (r *Router) Route(ctx context.Context, req Request) (*Result, error) {
	if !req.Complexity.Valid() {
		req.Complexity = llm.ComplexityMedium
	}

	pressure := r.governor.CurrentPressure()
	chain := r.policy.Chain(req.Complexity, pressure)

	available := make([]string, 0, len(chain))
	for _, name := range chain {
		if r.registry.IsAvailable(name) {
			available = append(available, name)
		}
	}

	if len(available) == 0 {
		routeRequests.WithLabelValues("none", "no_provider").Inc()
		r.logger.Printf("[Router] no provider available for complexity=%s pressure=%s (chain=%v)",
			req.Complexity, pressure, chain)
		return nil, &NoProviderAvailableError{
			Complexity: req.Complexity,
			Pressure:   pressure,
			Chain:      chain,
		}
	}

	genReq := llm.GenerateRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	}

	var attempts []Attempt
	for _, name := range available {
		provider, err := r.registry.Get(name)
		if err != nil {
			// Availability changed between the filter and now
			attempts = append(attempts, Attempt{Provider: name, Message: err.Error(), Err: err})
			continue
		}

		start := time.Now()
		resp, err := provider.Generate(ctx, genReq)
		latency := time.Since(start)

		if err != nil {
			attempt := Attempt{Provider: name, Err: err, Message: err.Error(), Latency: latency}
			if perr, ok := err.(*llm.ProviderError); ok {
				attempt.Code = perr.Code
			}
			attempts = append(attempts, attempt)
			routeAttempts.WithLabelValues(name, "error").Inc()
			r.logger.Printf("[Router] provider %s failed (complexity=%s, attempt %d/%d): %v",
				name, req.Complexity, len(attempts), len(available), err)
			continue
		}

		routeAttempts.WithLabelValues(name, "success").Inc()
		routeRequests.WithLabelValues(name, "success").Inc()
		routeDuration.WithLabelValues(name).Observe(float64(latency.Milliseconds()))

		r.governor.RecordUsageDetail(cost.UsageDetail{
			Provider:   name,
			Tokens:     resp.TokensUsed,
			Model:      resp.Model,
			Complexity: string(req.Complexity),
			RequestID:  req.RequestID,
		})

		return &Result{
			Response: resp,
			Provider: name,
			Pressure: pressure,
			Attempts: attempts,
		}, nil
	}

	routeRequests.WithLabelValues("none", "all_failed").Inc()
	return nil, &AllProvidersFailedError{
		Complexity: req.Complexity,
		Pressure:   pressure,
		Attempts:   attempts,
	}
}

// Providers returns registry info for every configured provider
func (r *Router) Providers() []llm.ProviderInfo {
	return r.registry.Infos()
}
