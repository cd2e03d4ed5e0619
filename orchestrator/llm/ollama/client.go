// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

// Package ollama provides a client for locally hosted models served by
// Ollama's generate API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultEndpoint is the default Ollama server address
	DefaultEndpoint = "http://localhost:11434"

	// DefaultModel is used when no model is configured
	DefaultModel = "llama3.2"

	// DefaultTimeout is the default HTTP timeout. Local inference on
	// modest hardware can take minutes for long prompts.
	DefaultTimeout = 5 * time.Minute
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config contains configuration for the Ollama client
type Config struct {
	Endpoint string        // Optional: Ollama server address
	Model    string        // Optional: default model
	Timeout  time.Duration // Optional: HTTP timeout
}

// Client calls a local Ollama server
type Client struct {
	endpoint string
	model    string
	client   HTTPClient
}

// CompletionRequest represents a completion request to Ollama
type CompletionRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Model        string
}

// CompletionResponse represents a completion response from Ollama
type CompletionResponse struct {
	Content string
	Model   string
	Usage   UsageStats
	Latency time.Duration
}

// UsageStats contains token usage statistics
type UsageStats struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// NewClient creates a new Ollama client
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// SetHTTPClient overrides the HTTP client (used in tests)
func (c *Client) SetHTTPClient(client HTTPClient) {
	c.client = client
}

// Model returns the configured default model
func (c *Client) Model() string {
	return c.model
}

// Complete generates a completion for the given request
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	apiReq := generateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: false,
	}
	if req.Temperature >= 0 {
		apiReq.Options.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		apiReq.Options.NumPredict = req.MaxTokens
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/api/generate", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	promptTokens := apiResp.PromptEvalCount
	completionTokens := apiResp.EvalCount
	if promptTokens == 0 && completionTokens == 0 {
		// Older servers omit eval counts. Roughly 4 chars per token.
		promptTokens = len(req.Prompt) / 4
		completionTokens = len(apiResp.Response) / 4
	}

	return &CompletionResponse{
		Content: apiResp.Response,
		Model:   apiResp.Model,
		Usage: UsageStats{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// APIError represents an Ollama API error
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ollama API error (status %d): %s", e.StatusCode, e.Message)
}

// Internal API types

type generateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	System  string `json:"system,omitempty"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature *float64 `json:"temperature,omitempty"`
		NumPredict  int      `json:"num_predict,omitempty"`
	} `json:"options,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}
