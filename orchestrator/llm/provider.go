// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
)

// Provider is the unified interface for all LLM backends.
// Implementations must be safe for concurrent use.
//
// The routing core treats every backend as this narrow capability: turn a
// prompt into text, report tokens used, and fail with a ProviderError that
// says whether the failure was transient. Vendor SDK details stay inside
// the implementation packages.
type Provider interface {
	// Name returns the unique identifier for this provider instance.
	// Used for routing, logging, and metrics. Example: "anthropic".
	Name() string

	// Tier returns the cost bracket this provider belongs to.
	Tier() ProviderTier

	// Model returns the provider's configured default model identifier.
	Model() string

	// CostPerMillionTokens returns the blended USD rate used by the cost
	// governor to convert token counts into spend. Free providers return 0.
	CostPerMillionTokens() float64

	// Generate produces a completion for the given request. The context
	// carries cancellation and the per-call timeout; the provider client
	// owns its own HTTP timeout as a backstop.
	//
	// Failures should be returned as *ProviderError so the router can
	// distinguish retryable from fatal causes in its attempt log.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}
