// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package router

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"polyroute/platform/orchestrator/cost"
	"polyroute/platform/orchestrator/llm"
)

// Attempt records one provider call made during a routing cascade
type Attempt struct {
	Provider string        `json:"provider"`
	Code     string        `json:"code,omitempty"`
	Err      error         `json:"-"`
	Message  string        `json:"message"`
	Latency  time.Duration `json:"latency_ms"`
}

// NoProviderAvailableError is returned without any provider call when the
// policy chain for the request contains no available provider
type NoProviderAvailableError struct {
	Complexity llm.ComplexityTier
	Pressure   cost.Pressure
	Chain      []string
}

func (e *NoProviderAvailableError) Error() string {
	return fmt.Sprintf("no provider available for complexity=%s pressure=%s (chain: %s)",
		e.Complexity, e.Pressure, strings.Join(e.Chain, ", "))
}

// AllProvidersFailedError is returned when every provider in the cascade was
// tried and failed. Attempts preserves the order in which providers failed.
type AllProvidersFailedError struct {
	Complexity llm.ComplexityTier
	Pressure   cost.Pressure
	Attempts   []Attempt
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %s", a.Provider, a.Message)
	}
	return fmt.Sprintf("all %d providers failed for complexity=%s pressure=%s [%s]",
		len(e.Attempts), e.Complexity, e.Pressure, strings.Join(parts, "; "))
}

// IsNoProviderAvailable reports whether err is a NoProviderAvailableError
func IsNoProviderAvailable(err error) bool {
	var target *NoProviderAvailableError
	return errors.As(err, &target)
}

// IsAllProvidersFailed reports whether err is an AllProvidersFailedError
func IsAllProvidersFailed(err error) bool {
	var target *AllProvidersFailedError
	return errors.As(err, &target)
}
