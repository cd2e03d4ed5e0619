// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"testing"
	"time"
)

// clearProviderEnv blanks every provider credential so tests control exactly
// which providers the config sees
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "BUDGET_CEILING_USD", "SYNTHESIS_PROVIDER", "VALIDATION_THRESHOLD",
		"FANOUT_DEADLINE", "ROUTING_POLICY_FILE",
		"ANTHROPIC_API_KEY", "ANTHROPIC_SECRET_ARN", "ANTHROPIC_MODEL",
		"OPENAI_API_KEY", "OPENAI_SECRET_ARN", "OPENAI_MODEL",
		"OLLAMA_ENDPOINT", "OLLAMA_MODEL",
		"BEDROCK_REGION", "BEDROCK_MODEL",
		"DATABASE_URL", "REDIS_ADDR", "ADMIN_JWT_SECRET", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OLLAMA_ENDPOINT", "http://localhost:11434")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("port = %s", cfg.Port)
	}
	if cfg.BudgetCeilingUSD != 100.0 {
		t.Errorf("ceiling = %g", cfg.BudgetCeilingUSD)
	}
	if cfg.SynthesisProvider != "anthropic" {
		t.Errorf("synthesis provider = %s", cfg.SynthesisProvider)
	}
	if cfg.ValidationThreshold != 0.7 {
		t.Errorf("threshold = %g", cfg.ValidationThreshold)
	}
	if cfg.FanoutDeadline != 30*time.Second {
		t.Errorf("deadline = %s", cfg.FanoutDeadline)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("cors origins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("PORT", "9090")
	t.Setenv("BUDGET_CEILING_USD", "250.5")
	t.Setenv("VALIDATION_THRESHOLD", "0.5")
	t.Setenv("FANOUT_DEADLINE", "45s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Port != "9090" || cfg.BudgetCeilingUSD != 250.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ValidationThreshold != 0.5 || cfg.FanoutDeadline != 45*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("cors origins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigRequiresProvider(t *testing.T) {
	clearProviderEnv(t)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error with no providers configured")
	}
}

func TestLoadConfigRejectsBadThreshold(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OLLAMA_ENDPOINT", "http://localhost:11434")
	t.Setenv("VALIDATION_THRESHOLD", "1.5")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for threshold above 1")
	}
}

func TestLoadConfigInvalidNumberFallsBack(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OLLAMA_ENDPOINT", "http://localhost:11434")
	t.Setenv("BUDGET_CEILING_USD", "lots")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.BudgetCeilingUSD != 100.0 {
		t.Errorf("ceiling = %g, want default", cfg.BudgetCeilingUSD)
	}
}

func TestUsesSecretsManager(t *testing.T) {
	cfg := &Config{AnthropicSecretARN: "arn:aws:secretsmanager:us-east-1:123:secret:x"}
	if !cfg.usesSecretsManager() {
		t.Error("ARN-backed credential should require Secrets Manager")
	}
	cfg = &Config{AnthropicAPIKey: "sk-ant"}
	if cfg.usesSecretsManager() {
		t.Error("literal key should not require Secrets Manager")
	}
}
