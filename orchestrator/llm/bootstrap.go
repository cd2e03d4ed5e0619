// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/smithy-go"

	"polyroute/platform/orchestrator/llm/anthropic"
	"polyroute/platform/orchestrator/llm/bedrock"
	"polyroute/platform/orchestrator/llm/ollama"
	"polyroute/platform/orchestrator/llm/openai"
)

// Canonical provider names used in routing policies
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// defaultRates are blended per-million-token rates in USD, used when no
// override is configured. Ollama is local inference and costs nothing.
var defaultRates = map[string]float64{
	ProviderAnthropic: 9.00,
	ProviderOpenAI:    2.50,
	ProviderBedrock:   9.00,
	ProviderOllama:    0.0,
}

// defaultTiers maps providers to their capability tier
var defaultTiers = map[string]ProviderTier{
	ProviderAnthropic: TierPremium,
	ProviderOpenAI:    TierStandard,
	ProviderBedrock:   TierPremium,
	ProviderOllama:    TierFree,
}

// BootstrapConfig configures which providers to construct and how
type BootstrapConfig struct {
	AnthropicAPIKey    string
	AnthropicSecretARN string
	AnthropicModel     string

	OpenAIAPIKey    string
	OpenAISecretARN string
	OpenAIModel     string

	OllamaEndpoint string
	OllamaModel    string

	BedrockRegion string
	BedrockModel  string

	// RateOverrides replaces the default per-million-token rate for a
	// provider name when present
	RateOverrides map[string]float64

	Logger *log.Logger
}

func (c *BootstrapConfig) rate(name string) float64 {
	if r, ok := c.RateOverrides[name]; ok {
		return r
	}
	return defaultRates[name]
}

// BuildRegistry constructs a provider registry from configuration.
//
// A provider whose credentials cannot be resolved is registered as
// unavailable rather than dropped, so routing decisions can report it was
// configured but unusable. BuildRegistry fails only when no provider at all
// could be constructed.
func BuildRegistry(ctx context.Context, cfg BootstrapConfig, resolver CredentialResolver) (*Registry, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	registry := NewRegistry()

	if cfg.AnthropicAPIKey != "" || cfg.AnthropicSecretARN != "" {
		apiKey, err := resolveKey(ctx, resolver, cfg.AnthropicAPIKey, cfg.AnthropicSecretARN)
		if err == nil {
			client, cerr := anthropic.NewClient(anthropic.Config{APIKey: apiKey, Model: cfg.AnthropicModel})
			if cerr == nil {
				if rerr := registry.Register(&anthropicProvider{client: client, rate: cfg.rate(ProviderAnthropic)}); rerr != nil {
					return nil, rerr
				}
				logger.Printf("[Bootstrap] Registered provider %s (model=%s)", ProviderAnthropic, client.Model())
			} else {
				err = cerr
			}
		}
		if err != nil {
			logger.Printf("[Bootstrap] WARNING: provider %s configured but unusable: %v", ProviderAnthropic, err)
			if rerr := registry.RegisterUnavailable(ProviderInfo{
				Name: ProviderAnthropic, Tier: defaultTiers[ProviderAnthropic],
				Model: cfg.AnthropicModel, CostPerMillionTokens: cfg.rate(ProviderAnthropic),
			}); rerr != nil {
				logger.Printf("[Bootstrap] WARNING: could not record %s as unavailable: %v", ProviderAnthropic, rerr)
			}
		}
	}

	if cfg.OpenAIAPIKey != "" || cfg.OpenAISecretARN != "" {
		apiKey, err := resolveKey(ctx, resolver, cfg.OpenAIAPIKey, cfg.OpenAISecretARN)
		if err == nil {
			client, cerr := openai.NewClient(openai.Config{APIKey: apiKey, Model: cfg.OpenAIModel})
			if cerr == nil {
				if rerr := registry.Register(&openaiProvider{client: client, rate: cfg.rate(ProviderOpenAI)}); rerr != nil {
					return nil, rerr
				}
				logger.Printf("[Bootstrap] Registered provider %s (model=%s)", ProviderOpenAI, client.Model())
			} else {
				err = cerr
			}
		}
		if err != nil {
			logger.Printf("[Bootstrap] WARNING: provider %s configured but unusable: %v", ProviderOpenAI, err)
			if rerr := registry.RegisterUnavailable(ProviderInfo{
				Name: ProviderOpenAI, Tier: defaultTiers[ProviderOpenAI],
				Model: cfg.OpenAIModel, CostPerMillionTokens: cfg.rate(ProviderOpenAI),
			}); rerr != nil {
				logger.Printf("[Bootstrap] WARNING: could not record %s as unavailable: %v", ProviderOpenAI, rerr)
			}
		}
	}

	if cfg.OllamaEndpoint != "" {
		client := ollama.NewClient(ollama.Config{Endpoint: cfg.OllamaEndpoint, Model: cfg.OllamaModel})
		if err := registry.Register(&ollamaProvider{client: client, rate: cfg.rate(ProviderOllama)}); err != nil {
			return nil, err
		}
		logger.Printf("[Bootstrap] Registered provider %s (endpoint=%s, model=%s)", ProviderOllama, cfg.OllamaEndpoint, client.Model())
	}

	if cfg.BedrockRegion != "" {
		client, err := bedrock.NewClient(ctx, bedrock.Config{Region: cfg.BedrockRegion, Model: cfg.BedrockModel})
		if err == nil {
			if rerr := registry.Register(&bedrockProvider{client: client, rate: cfg.rate(ProviderBedrock)}); rerr != nil {
				return nil, rerr
			}
			logger.Printf("[Bootstrap] Registered provider %s (region=%s, model=%s)", ProviderBedrock, cfg.BedrockRegion, client.Model())
		} else {
			logger.Printf("[Bootstrap] WARNING: provider %s configured but unusable: %v", ProviderBedrock, err)
			if rerr := registry.RegisterUnavailable(ProviderInfo{
				Name: ProviderBedrock, Tier: defaultTiers[ProviderBedrock],
				Model: cfg.BedrockModel, CostPerMillionTokens: cfg.rate(ProviderBedrock),
			}); rerr != nil {
				logger.Printf("[Bootstrap] WARNING: could not record %s as unavailable: %v", ProviderBedrock, rerr)
			}
		}
	}

	if len(registry.List()) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	return registry, nil
}

// resolveKey returns the literal key if set, otherwise resolves the secret
// reference through the resolver
func resolveKey(ctx context.Context, resolver CredentialResolver, literal, secretRef string) (string, error) {
	if literal != "" {
		return literal, nil
	}
	if resolver == nil {
		return "", fmt.Errorf("secret reference %q set but no credential resolver configured", secretRef)
	}
	key, err := resolver.Resolve(ctx, secretRef)
	if err != nil {
		return "", fmt.Errorf("failed to resolve credential: %w", err)
	}
	return key, nil
}

// Adapters wrapping vendor clients into the Provider interface

type anthropicProvider struct {
	client *anthropic.Client
	rate   float64
}

func (p *anthropicProvider) Name() string                  { return ProviderAnthropic }
func (p *anthropicProvider) Tier() ProviderTier            { return TierPremium }
func (p *anthropicProvider) Model() string                 { return p.client.Model() }
func (p *anthropicProvider) CostPerMillionTokens() float64 { return p.rate }

func (p *anthropicProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	resp, err := p.client.Complete(ctx, anthropic.CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Model:        req.Model,
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, WrapHTTPStatus(ProviderAnthropic, apiErr.StatusCode, apiErr.Message, apiErr)
		}
		return nil, wrapTransportError(ProviderAnthropic, err)
	}
	return &GenerateResponse{
		Text:       resp.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
		Latency:    resp.Latency,
	}, nil
}

type openaiProvider struct {
	client *openai.Client
	rate   float64
}

func (p *openaiProvider) Name() string                  { return ProviderOpenAI }
func (p *openaiProvider) Tier() ProviderTier            { return TierStandard }
func (p *openaiProvider) Model() string                 { return p.client.Model() }
func (p *openaiProvider) CostPerMillionTokens() float64 { return p.rate }

func (p *openaiProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	resp, err := p.client.Complete(ctx, openai.CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Model:        req.Model,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, WrapHTTPStatus(ProviderOpenAI, apiErr.StatusCode, apiErr.Message, apiErr)
		}
		return nil, wrapTransportError(ProviderOpenAI, err)
	}
	return &GenerateResponse{
		Text:       resp.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
		Latency:    resp.Latency,
	}, nil
}

type ollamaProvider struct {
	client *ollama.Client
	rate   float64
}

func (p *ollamaProvider) Name() string                  { return ProviderOllama }
func (p *ollamaProvider) Tier() ProviderTier            { return TierFree }
func (p *ollamaProvider) Model() string                 { return p.client.Model() }
func (p *ollamaProvider) CostPerMillionTokens() float64 { return p.rate }

func (p *ollamaProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	resp, err := p.client.Complete(ctx, ollama.CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Model:        req.Model,
	})
	if err != nil {
		var apiErr *ollama.APIError
		if errors.As(err, &apiErr) {
			return nil, WrapHTTPStatus(ProviderOllama, apiErr.StatusCode, apiErr.Message, apiErr)
		}
		return nil, wrapTransportError(ProviderOllama, err)
	}
	return &GenerateResponse{
		Text:       resp.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
		Latency:    resp.Latency,
	}, nil
}

type bedrockProvider struct {
	client *bedrock.Client
	rate   float64
}

func (p *bedrockProvider) Name() string                  { return ProviderBedrock }
func (p *bedrockProvider) Tier() ProviderTier            { return TierPremium }
func (p *bedrockProvider) Model() string                 { return p.client.Model() }
func (p *bedrockProvider) CostPerMillionTokens() float64 { return p.rate }

func (p *bedrockProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	resp, err := p.client.Complete(ctx, bedrock.CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Model:        req.Model,
	})
	if err != nil {
		return nil, wrapBedrockError(err)
	}
	return &GenerateResponse{
		Text:       resp.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
		Latency:    resp.Latency,
	}, nil
}

// wrapBedrockError classifies AWS SDK failures into a ProviderError. Named
// service exceptions map to the same codes the HTTP clients derive from
// status codes; anything else is treated as a transport failure.
func wrapBedrockError(err error) *ProviderError {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return wrapTransportError(ProviderBedrock, err)
	}

	var code string
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
		code = ErrCodeRateLimit
	case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException", "InvalidSignatureException":
		code = ErrCodeAuth
	case "ValidationException", "ResourceNotFoundException":
		code = ErrCodeInvalidRequest
	case "ModelTimeoutException":
		code = ErrCodeTimeout
	case "ModelNotReadyException", "ServiceUnavailableException":
		code = ErrCodeUnavailable
	default:
		code = ErrCodeServerError
	}

	perr := NewProviderError(ProviderBedrock, code, apiErr.ErrorMessage())
	perr.Cause = err
	return perr
}

// wrapTransportError classifies non-HTTP failures (network errors, context
// cancellation) into a ProviderError
func wrapTransportError(provider string, err error) *ProviderError {
	code := ErrCodeUnavailable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = ErrCodeTimeout
	}
	perr := NewProviderError(provider, code, err.Error())
	perr.Cause = err
	return perr
}
