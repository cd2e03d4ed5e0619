// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

// Package bedrock provides a client for AWS Bedrock foundation models using
// AWS SDK v2. Requests are signed with AWS Signature V4 via the standard
// credential chain, so no API key is handled by this package.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	// DefaultModel is used when no model is configured
	DefaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

	// DefaultMaxTokens is the default max tokens for completions
	DefaultMaxTokens = 4096
)

// ModelInvoker is the subset of the Bedrock runtime API used by this client
// (enables testing)
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Config contains configuration for the Bedrock client
type Config struct {
	Region string // Required: AWS region
	Model  string // Optional: default model ID
}

// Client calls AWS Bedrock foundation models
type Client struct {
	invoker ModelInvoker
	region  string
	model   string
}

// CompletionRequest represents a completion request to Bedrock
type CompletionRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Model        string
}

// CompletionResponse represents a completion response from Bedrock
type CompletionResponse struct {
	Content string
	Model   string
	Usage   UsageStats
	Latency time.Duration
}

// UsageStats contains token usage statistics
type UsageStats struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// NewClient creates a new Bedrock client using the default AWS credential chain
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("bedrock region is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		invoker: bedrockruntime.NewFromConfig(awsCfg),
		region:  cfg.Region,
		model:   cfg.Model,
	}, nil
}

// NewClientWithInvoker creates a client with a custom runtime (used in tests)
func NewClientWithInvoker(invoker ModelInvoker, region, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{invoker: invoker, region: region, model: model}
}

// Model returns the configured default model
func (c *Client) Model() string {
	return c.model
}

// Region returns the configured AWS region
func (c *Client) Region() string {
	return c.region
}

// Complete generates a completion for the given request
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	requestBody, err := buildRequestBody(req, model, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := c.invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        requestJSON,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock API error: %w", err)
	}

	resp, err := parseResponseBody(output.Body, model)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	resp.Model = model
	resp.Latency = time.Since(start)
	return resp, nil
}

// buildRequestBody builds the request body based on model family
func buildRequestBody(req CompletionRequest, model string, maxTokens int) (map[string]interface{}, error) {
	family := detectModelFamily(model)

	switch family {
	case "anthropic":
		body := map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        maxTokens,
			"temperature":       req.Temperature,
			"messages": []map[string]string{
				{"role": "user", "content": req.Prompt},
			},
		}
		if req.SystemPrompt != "" {
			body["system"] = req.SystemPrompt
		}
		return body, nil
	case "amazon":
		return map[string]interface{}{
			"inputText": req.Prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": maxTokens,
				"temperature":   req.Temperature,
				"topP":          0.9,
			},
		}, nil
	case "meta":
		return map[string]interface{}{
			"prompt":      req.Prompt,
			"max_gen_len": maxTokens,
			"temperature": req.Temperature,
			"top_p":       0.9,
		}, nil
	case "mistral":
		return map[string]interface{}{
			"prompt":      req.Prompt,
			"max_tokens":  maxTokens,
			"temperature": req.Temperature,
			"top_p":       0.9,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported model family in %q", model)
	}
}

// parseResponseBody parses the response body based on model family
func parseResponseBody(body []byte, model string) (*CompletionResponse, error) {
	switch detectModelFamily(model) {
	case "anthropic":
		return parseAnthropicResponse(body)
	case "amazon":
		return parseTitanResponse(body)
	case "meta":
		return parseLlamaResponse(body)
	case "mistral":
		return parseMistralResponse(body)
	default:
		return nil, fmt.Errorf("unsupported model family in %q", model)
	}
}

func parseAnthropicResponse(body []byte) (*CompletionResponse, error) {
	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	content := ""
	if len(resp.Content) > 0 {
		content = resp.Content[0].Text
	}

	return &CompletionResponse{
		Content: content,
		Usage: UsageStats{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func parseTitanResponse(body []byte) (*CompletionResponse, error) {
	var resp struct {
		Results []struct {
			OutputText string `json:"outputText"`
			TokenCount int    `json:"tokenCount"`
		} `json:"results"`
		InputTextTokenCount int `json:"inputTextTokenCount"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	content := ""
	outputTokens := 0
	if len(resp.Results) > 0 {
		content = resp.Results[0].OutputText
		outputTokens = resp.Results[0].TokenCount
	}

	return &CompletionResponse{
		Content: content,
		Usage: UsageStats{
			InputTokens:  resp.InputTextTokenCount,
			OutputTokens: outputTokens,
			TotalTokens:  resp.InputTextTokenCount + outputTokens,
		},
	}, nil
}

func parseLlamaResponse(body []byte) (*CompletionResponse, error) {
	var resp struct {
		Generation       string `json:"generation"`
		PromptTokenCount int    `json:"prompt_token_count"`
		GenTokenCount    int    `json:"generation_token_count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &CompletionResponse{
		Content: resp.Generation,
		Usage: UsageStats{
			InputTokens:  resp.PromptTokenCount,
			OutputTokens: resp.GenTokenCount,
			TotalTokens:  resp.PromptTokenCount + resp.GenTokenCount,
		},
	}, nil
}

func parseMistralResponse(body []byte) (*CompletionResponse, error) {
	var resp struct {
		Outputs []struct {
			Text string `json:"text"`
		} `json:"outputs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	content := ""
	if len(resp.Outputs) > 0 {
		content = resp.Outputs[0].Text
	}

	// Mistral does not report token counts
	return &CompletionResponse{Content: content}, nil
}

// inferenceProfilePrefixes are the known AWS Bedrock inference profile prefixes.
var inferenceProfilePrefixes = []string{"eu", "us", "apac", "global"}

// supportedModelFamilies are the model families this client can talk to.
var supportedModelFamilies = []string{"anthropic", "amazon", "meta", "mistral"}

// detectModelFamily detects the model family from a model ID.
//
// Model IDs follow the pattern provider.model-name-version, for example
// anthropic.claude-3-5-sonnet-20240620-v1:0. Inference profile IDs carry a
// regional prefix, for example us.anthropic.claude-sonnet-4-5-20250929-v1:0.
func detectModelFamily(modelID string) string {
	segments := strings.Split(modelID, ".")
	if len(segments) < 2 {
		return ""
	}

	first := segments[0]
	for _, prefix := range inferenceProfilePrefixes {
		if first == prefix {
			return validateFamily(segments[1])
		}
	}

	return validateFamily(first)
}

// validateFamily returns the family if supported, empty string otherwise
func validateFamily(family string) string {
	for _, supported := range supportedModelFamilies {
		if family == supported {
			return family
		}
	}
	return ""
}
