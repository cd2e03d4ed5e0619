// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package router

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"polyroute/platform/orchestrator/cost"
	"polyroute/platform/orchestrator/llm"
)

// pressureLevels in escalation order
var pressureLevels = []cost.Pressure{cost.PressureNormal, cost.PressureWarning, cost.PressureCritical}

// PolicyKey selects a provider chain by task complexity and budget pressure
type PolicyKey struct {
	Complexity llm.ComplexityTier
	Pressure   cost.Pressure
}

// Policy maps every (complexity, pressure) combination to an ordered chain
// of provider names. The first available provider in the chain is tried
// first; later entries are fallbacks.
type Policy map[PolicyKey][]string

// Chain returns the provider chain for a combination. A missing cell
// returns nil.
func (p Policy) Chain(complexity llm.ComplexityTier, pressure cost.Pressure) []string {
	return p[PolicyKey{Complexity: complexity, Pressure: pressure}]
}

// DefaultPolicy returns the built-in routing policy.
//
// Light tasks start on the cheapest provider and escalate only if it fails.
// Heavy tasks start on a premium provider under normal pressure and are
// pushed toward cheaper providers as the budget tightens.
func DefaultPolicy() Policy {
	return Policy{
		{llm.ComplexityLight, cost.PressureNormal}:   {llm.ProviderOllama, llm.ProviderOpenAI},
		{llm.ComplexityLight, cost.PressureWarning}:  {llm.ProviderOllama, llm.ProviderOpenAI},
		{llm.ComplexityLight, cost.PressureCritical}: {llm.ProviderOllama},

		{llm.ComplexityMedium, cost.PressureNormal}:   {llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderOllama},
		{llm.ComplexityMedium, cost.PressureWarning}:  {llm.ProviderOpenAI, llm.ProviderOllama},
		{llm.ComplexityMedium, cost.PressureCritical}: {llm.ProviderOllama, llm.ProviderOpenAI},

		{llm.ComplexityHeavy, cost.PressureNormal}:   {llm.ProviderAnthropic, llm.ProviderBedrock, llm.ProviderOpenAI},
		{llm.ComplexityHeavy, cost.PressureWarning}:  {llm.ProviderOpenAI, llm.ProviderAnthropic},
		{llm.ComplexityHeavy, cost.PressureCritical}: {llm.ProviderOllama, llm.ProviderOpenAI},
	}
}

// Validate checks the policy against a provider registry at startup.
// Every (complexity, pressure) combination must have a non-empty chain, and
// every chain entry must name a configured provider. Providers that are
// configured but currently unavailable pass validation.
func (p Policy) Validate(registry *llm.Registry) error {
	var problems []string

	for _, complexity := range llm.ValidComplexityTiers {
		for _, pressure := range pressureLevels {
			chain := p.Chain(complexity, pressure)
			if len(chain) == 0 {
				problems = append(problems, fmt.Sprintf("no chain for complexity=%s pressure=%s", complexity, pressure))
				continue
			}
			for _, name := range chain {
				if !registry.Exists(name) {
					problems = append(problems, fmt.Sprintf("unknown provider %q in chain for complexity=%s pressure=%s", name, complexity, pressure))
				}
			}
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid routing policy: %s", strings.Join(problems, "; "))
	}
	return nil
}

// policyFile is the YAML on-disk representation of a routing policy
type policyFile struct {
	Policies map[string]map[string][]string `yaml:"policies"`
}

// LoadPolicyFile reads a routing policy from a YAML file. The file must
// cover every (complexity, pressure) combination:
//
//	policies:
//	  light:
//	    normal: [ollama, openai]
//	    warning: [ollama, openai]
//	    critical: [ollama]
//	  medium:
//	    ...
func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses a YAML routing policy
func ParsePolicy(data []byte) (Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	policy := make(Policy)
	for complexityName, byPressure := range file.Policies {
		complexity, err := llm.ParseComplexity(complexityName)
		if err != nil {
			return nil, fmt.Errorf("policy file: %w", err)
		}
		for pressureName, chain := range byPressure {
			pressure, err := parsePressure(pressureName)
			if err != nil {
				return nil, fmt.Errorf("policy file: %w", err)
			}
			policy[PolicyKey{Complexity: complexity, Pressure: pressure}] = chain
		}
	}

	for _, complexity := range llm.ValidComplexityTiers {
		for _, pressure := range pressureLevels {
			if _, ok := policy[PolicyKey{Complexity: complexity, Pressure: pressure}]; !ok {
				return nil, fmt.Errorf("policy file missing entry for complexity=%s pressure=%s", complexity, pressure)
			}
		}
	}

	return policy, nil
}

func parsePressure(s string) (cost.Pressure, error) {
	for _, level := range pressureLevels {
		if s == string(level) {
			return level, nil
		}
	}
	return "", fmt.Errorf("unknown pressure level %q", s)
}
