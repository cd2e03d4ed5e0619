// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full gateway configuration, loaded from environment
// variables with an optional .env file for local development
type Config struct {
	Port string

	BudgetCeilingUSD    float64
	SynthesisProvider   string
	ValidationThreshold float64
	FanoutDeadline      time.Duration
	RoutingPolicyFile   string

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

	AWSRegion   string
	DatabaseURL string
	RedisAddr   string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables
// win over .env entries.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("[Config] Loaded .env file")
	}

	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		BudgetCeilingUSD:    getEnvFloat("BUDGET_CEILING_USD", 100.0),
		SynthesisProvider:   getEnv("SYNTHESIS_PROVIDER", "anthropic"),
		ValidationThreshold: getEnvFloat("VALIDATION_THRESHOLD", 0.7),
		FanoutDeadline:      getEnvDuration("FANOUT_DEADLINE", 30*time.Second),
		RoutingPolicyFile:   os.Getenv("ROUTING_POLICY_FILE"),

		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicSecretARN: os.Getenv("ANTHROPIC_SECRET_ARN"),
		AnthropicModel:     os.Getenv("ANTHROPIC_MODEL"),

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAISecretARN: os.Getenv("OPENAI_SECRET_ARN"),
		OpenAIModel:     os.Getenv("OPENAI_MODEL"),

		OllamaEndpoint: os.Getenv("OLLAMA_ENDPOINT"),
		OllamaModel:    os.Getenv("OLLAMA_MODEL"),

		BedrockRegion: os.Getenv("BEDROCK_REGION"),
		BedrockModel:  os.Getenv("BEDROCK_MODEL"),

		AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
	}

	origins := getEnv("CORS_ALLOWED_ORIGINS", "*")
	for _, origin := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, trimmed)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	hasProvider := c.AnthropicAPIKey != "" || c.AnthropicSecretARN != "" ||
		c.OpenAIAPIKey != "" || c.OpenAISecretARN != "" ||
		c.OllamaEndpoint != "" || c.BedrockRegion != ""
	if !hasProvider {
		return fmt.Errorf("no LLM providers configured: set at least one of ANTHROPIC_API_KEY, OPENAI_API_KEY, OLLAMA_ENDPOINT, BEDROCK_REGION")
	}
	if c.ValidationThreshold <= 0 || c.ValidationThreshold > 1 {
		return fmt.Errorf("VALIDATION_THRESHOLD must be in (0, 1], got %g", c.ValidationThreshold)
	}
	if c.BudgetCeilingUSD < 0 {
		return fmt.Errorf("BUDGET_CEILING_USD must not be negative, got %g", c.BudgetCeilingUSD)
	}
	return nil
}

// usesSecretsManager reports whether any provider credential is a Secrets
// Manager reference
func (c *Config) usesSecretsManager() bool {
	return c.AnthropicSecretARN != "" || c.OpenAISecretARN != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("[Config] WARNING: invalid %s=%q, using default %g", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("[Config] WARNING: invalid %s=%q, using default %s", key, value, fallback)
		return fallback
	}
	return parsed
}
