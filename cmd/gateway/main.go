// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the PolyRoute gateway service.
//
// The gateway routes LLM requests across multiple providers based on task
// complexity and budget pressure, with sequential fallback, concurrent
// fan-out with synthesis, and parallel validation.
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	BUDGET_CEILING_USD - monthly spend ceiling (default: 100)
//	SYNTHESIS_PROVIDER - provider used to combine fan-out results (default: anthropic)
//	VALIDATION_THRESHOLD - approval ratio required to pass validation (default: 0.7)
//	ROUTING_POLICY_FILE - YAML routing policy (optional, built-in default)
//	ANTHROPIC_API_KEY / ANTHROPIC_SECRET_ARN - Anthropic credentials (optional)
//	OPENAI_API_KEY / OPENAI_SECRET_ARN - OpenAI credentials (optional)
//	OLLAMA_ENDPOINT - Ollama endpoint URL (optional)
//	BEDROCK_REGION - AWS Bedrock region (optional)
//	DATABASE_URL - PostgreSQL connection string for usage audit (optional)
//	REDIS_ADDR - Redis address for the shared spend ledger (optional)
//	ADMIN_JWT_SECRET - HMAC secret for admin endpoints (optional)
package main

import (
	"polyroute/platform/gateway"
)

func main() {
	gateway.Run()
}
