// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"reflect"
	"testing"
)

// stubProvider is a minimal Provider for registry tests
type stubProvider struct {
	name string
	tier ProviderTier
	rate float64
}

func (s *stubProvider) Name() string                  { return s.name }
func (s *stubProvider) Tier() ProviderTier            { return s.tier }
func (s *stubProvider) Model() string                 { return "stub-model" }
func (s *stubProvider) CostPerMillionTokens() float64 { return s.rate }
func (s *stubProvider) Generate(_ context.Context, _ GenerateRequest) (*GenerateResponse, error) {
	return &GenerateResponse{Text: "stub"}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&stubProvider{name: "openai", tier: TierStandard, rate: 2.5}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	p, err := r.Get("openai")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q, want openai", p.Name())
	}
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&stubProvider{name: "openai"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&stubProvider{name: "openai"}); err == nil {
		t.Error("duplicate Register should fail")
	}
}

func TestRegistryRegisterNil(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Error("Register(nil) should fail")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); err == nil {
		t.Error("Get of unknown provider should fail")
	}
}

func TestRegistryUnavailableProvider(t *testing.T) {
	r := NewRegistry()

	err := r.RegisterUnavailable(ProviderInfo{
		Name: "bedrock", Tier: TierPremium, Model: "anthropic.claude-3-5-sonnet-20240620-v1:0",
		CostPerMillionTokens: 9.0,
	})
	if err != nil {
		t.Fatalf("RegisterUnavailable failed: %v", err)
	}

	if !r.Exists("bedrock") {
		t.Error("unavailable provider should still exist")
	}
	if r.IsAvailable("bedrock") {
		t.Error("unavailable provider should not be available")
	}
	if _, err := r.Get("bedrock"); err == nil {
		t.Error("Get of unavailable provider should fail")
	}
}

func TestRegistryRate(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubProvider{name: "anthropic", rate: 9.0})

	if got := r.Rate("anthropic"); got != 9.0 {
		t.Errorf("Rate(anthropic) = %g, want 9.0", got)
	}
	// Unknown providers cost nothing so usage recording never fails
	if got := r.Rate("mystery"); got != 0 {
		t.Errorf("Rate(mystery) = %g, want 0", got)
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubProvider{name: "openai"})
	_ = r.Register(&stubProvider{name: "anthropic"})
	_ = r.RegisterUnavailable(ProviderInfo{Name: "bedrock"})
	_ = r.Register(&stubProvider{name: "ollama"})

	wantAll := []string{"anthropic", "bedrock", "ollama", "openai"}
	if got := r.List(); !reflect.DeepEqual(got, wantAll) {
		t.Errorf("List() = %v, want %v", got, wantAll)
	}

	wantAvailable := []string{"anthropic", "ollama", "openai"}
	if got := r.ListAvailable(); !reflect.DeepEqual(got, wantAvailable) {
		t.Errorf("ListAvailable() = %v, want %v", got, wantAvailable)
	}
}
