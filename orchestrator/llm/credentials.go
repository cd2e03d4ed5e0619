// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// CredentialResolver resolves a provider's secret reference into an API key.
// References are either literal environment values or AWS Secrets Manager
// ARNs, so the same bootstrap path serves local dev and production.
type CredentialResolver interface {
	Resolve(ctx context.Context, secretRef string) (string, error)
}

// EnvCredentialResolver reads credentials from environment variables.
// The secretRef is the environment variable name.
type EnvCredentialResolver struct{}

// Resolve returns the value of the environment variable named by secretRef.
func (EnvCredentialResolver) Resolve(_ context.Context, secretRef string) (string, error) {
	value := os.Getenv(secretRef)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", secretRef)
	}
	return value, nil
}

// SecretsManagerResolver resolves credentials from AWS Secrets Manager.
// Secrets are cached with a TTL so repeated bootstraps and credential
// refreshes don't hammer the API.
type SecretsManagerResolver struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     string
	expiresAt time.Time
}

// SecretsManagerResolverOptions holds options for the resolver.
type SecretsManagerResolverOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewSecretsManagerResolver creates a resolver backed by AWS Secrets Manager.
func NewSecretsManagerResolver(ctx context.Context, opts SecretsManagerResolverOptions) (*SecretsManagerResolver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS] ", log.LstdFlags)
	}

	cfgOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &SecretsManagerResolver{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Resolve fetches the secret value for the given ARN. A JSON secret is
// expected to carry the key under "api_key"; a plain-string secret is used
// as-is.
func (s *SecretsManagerResolver) Resolve(ctx context.Context, secretRef string) (string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretRef]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskARN(secretRef))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretRef),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", maskARN(secretRef), err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskARN(secretRef))
	}

	value := *result.SecretString

	// JSON secrets carry the key under "api_key"
	var fields map[string]string
	if err := json.Unmarshal([]byte(value), &fields); err == nil {
		if key, ok := fields["api_key"]; ok {
			value = key
		}
	}

	s.mu.Lock()
	s.cache[secretRef] = &secretCacheEntry{
		value:     value,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return value, nil
}

// Invalidate removes a secret from the cache.
func (s *SecretsManagerResolver) Invalidate(secretRef string) {
	s.mu.Lock()
	delete(s.cache, secretRef)
	s.mu.Unlock()
}

// maskARN masks a secret reference for logging (shows only last 8 characters).
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// StaticCredentialResolver returns fixed values; used in tests and for
// configs that inline keys directly.
type StaticCredentialResolver map[string]string

// Resolve returns the mapped value for secretRef.
func (s StaticCredentialResolver) Resolve(_ context.Context, secretRef string) (string, error) {
	if value, ok := s[secretRef]; ok && value != "" {
		return value, nil
	}
	return "", fmt.Errorf("no credential for %q", secretRef)
}
