// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

// Package llm defines the provider abstraction used by the PolyRoute routing
// core: the narrow generate capability every backend exposes, the provider
// registry built once at startup, and the shared error taxonomy.
package llm

import (
	"fmt"
	"time"
)

// ProviderTier classifies a provider by cost bracket.
// The routing policy uses tiers to steer traffic as budget pressure rises.
type ProviderTier string

const (
	// TierFree covers self-hosted or zero-cost backends (e.g. Ollama).
	TierFree ProviderTier = "free"

	// TierStandard covers mid-priced hosted models.
	TierStandard ProviderTier = "standard"

	// TierPremium covers the most capable, most expensive models.
	TierPremium ProviderTier = "premium"
)

// ComplexityTier is the caller-declared difficulty of a request.
// It biases provider selection only; it never mutates shared state.
type ComplexityTier string

const (
	ComplexityLight  ComplexityTier = "light"
	ComplexityMedium ComplexityTier = "medium"
	ComplexityHeavy  ComplexityTier = "heavy"
)

// ValidComplexityTiers contains all valid complexity values.
var ValidComplexityTiers = []ComplexityTier{
	ComplexityLight,
	ComplexityMedium,
	ComplexityHeavy,
}

// Valid reports whether t is a recognized complexity tier.
func (t ComplexityTier) Valid() bool {
	for _, tier := range ValidComplexityTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// ParseComplexity parses a string into a ComplexityTier.
func ParseComplexity(s string) (ComplexityTier, error) {
	for _, tier := range ValidComplexityTiers {
		if ComplexityTier(s) == tier {
			return tier, nil
		}
	}
	return "", fmt.Errorf("invalid complexity tier %q (valid: light, medium, heavy)", s)
}

// GenerateRequest encapsulates the parameters for a single generation call.
// This is the unified request shape passed to every provider.
type GenerateRequest struct {
	// Prompt is the user's input text.
	Prompt string `json:"prompt"`

	// SystemPrompt is an optional system message. Providers that don't
	// support system prompts prepend it to the prompt.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens limits the response length. 0 means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Negative means provider default.
	Temperature float64 `json:"temperature,omitempty"`

	// Model overrides the provider's configured model.
	Model string `json:"model,omitempty"`
}

// GenerateResponse is the result of a generation call.
//
// Text is opaque to the routing core: no structured extraction is attempted
// here. Callers that need structured data must parse downstream with an
// explicit failure mode.
type GenerateResponse struct {
	// Text is the generated output.
	Text string `json:"text"`

	// Model is the model that actually served the request.
	Model string `json:"model"`

	// TokensUsed is the total token count (prompt + completion) as
	// reported by the provider, or an estimate when not reported.
	TokensUsed int `json:"tokens_used"`

	// Latency is the time the provider took to respond.
	Latency time.Duration `json:"latency"`
}

// ProviderError represents a failure from a single backend call.
type ProviderError struct {
	// Provider is the name of the provider that failed.
	Provider string `json:"provider"`

	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// StatusCode is the HTTP status code, if applicable.
	StatusCode int `json:"status_code,omitempty"`

	// Retryable indicates whether a different attempt could succeed.
	// Timeouts, rate limits and 5xx-class failures are retryable;
	// auth and malformed-request failures are not.
	Retryable bool `json:"retryable"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Common error codes.
const (
	// ErrCodeRateLimit indicates rate limiting by the provider.
	ErrCodeRateLimit = "rate_limit"

	// ErrCodeAuth indicates an authentication or credential failure.
	ErrCodeAuth = "authentication_error"

	// ErrCodeInvalidRequest indicates a malformed request.
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeServerError indicates a provider-side 5xx failure.
	ErrCodeServerError = "server_error"

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = "timeout"

	// ErrCodeUnavailable indicates the provider is unreachable.
	ErrCodeUnavailable = "unavailable"
)

// NewProviderError creates a ProviderError with Retryable derived from code.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// IsRetryableCode reports whether an error code represents a transient
// failure worth retrying on another provider.
func IsRetryableCode(code string) bool {
	switch code {
	case ErrCodeRateLimit, ErrCodeServerError, ErrCodeTimeout, ErrCodeUnavailable:
		return true
	default:
		return false
	}
}

// WrapHTTPStatus converts an HTTP status code into a ProviderError.
func WrapHTTPStatus(provider string, statusCode int, message string, cause error) *ProviderError {
	code := ErrCodeServerError
	switch {
	case statusCode == 401 || statusCode == 403:
		code = ErrCodeAuth
	case statusCode == 429:
		code = ErrCodeRateLimit
	case statusCode >= 400 && statusCode < 500:
		code = ErrCodeInvalidRequest
	}

	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  IsRetryableCode(code),
		Cause:      cause,
	}
}
