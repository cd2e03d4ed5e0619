// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package fanout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"polyroute/platform/orchestrator/cost"
	"polyroute/platform/orchestrator/llm"
)

// ErrNoSuccessfulResults is returned when a synthesis is requested over a
// fan-out in which every provider failed
var ErrNoSuccessfulResults = errors.New("no successful results to synthesize")

// Synthesis methods
const (
	// MethodVerbatim means a single successful result was passed through
	// unchanged, with no synthesis call
	MethodVerbatim = "verbatim"

	// MethodSynthesis means a synthesis provider combined the results
	MethodSynthesis = "synthesis"

	// MethodConcatenation means the synthesis call failed and results were
	// joined mechanically instead
	MethodConcatenation = "concatenation"
)

// SynthesisResult is a combined answer produced from fan-out results
type SynthesisResult struct {
	Text        string `json:"text"`
	Method      string `json:"method"`
	Provider    string `json:"provider,omitempty"`
	SourceCount int    `json:"source_count"`
}

// Synthesizer combines fan-out results into one answer using a designated
// synthesis provider
type Synthesizer struct {
	registry *llm.Registry
	provider string
	governor Governor
	logger   *log.Logger
}

// NewSynthesizer creates a synthesizer that combines results via the named
// provider
func NewSynthesizer(registry *llm.Registry, provider string, governor Governor, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synthesizer{
		registry: registry,
		provider: provider,
		governor: governor,
		logger:   logger,
	}
}

// Synthesize reduces a fan-out response to a single answer.
//
// With no successful results it returns ErrNoSuccessfulResults. A single
// successful result is returned verbatim without any provider call. Two or
// more results trigger exactly one call to the synthesis provider; if that
// call fails, the results are concatenated with provider labels instead and
// no error is returned.
func (s *Synthesizer) Synthesize(ctx context.Context, originalPrompt string, resp *Response) (*SynthesisResult, error) {
	successful := resp.SuccessfulResults()

	if len(successful) == 0 {
		return nil, ErrNoSuccessfulResults
	}

	if len(successful) == 1 {
		only := successful[0]
		return &SynthesisResult{
			Text:        only.Response.Text,
			Method:      MethodVerbatim,
			Provider:    only.Provider,
			SourceCount: 1,
		}, nil
	}

	prompt := buildSynthesisPrompt(originalPrompt, successful)

	provider, err := s.registry.Get(s.provider)
	if err != nil {
		s.logger.Printf("[Synthesize] synthesis provider %s unavailable, using concatenation: %v", s.provider, err)
		return s.concatenate(originalPrompt, successful), nil
	}

	synthesized, err := provider.Generate(ctx, llm.GenerateRequest{Prompt: prompt})
	if err != nil {
		s.logger.Printf("[Synthesize] synthesis call failed, using concatenation: %v", err)
		return s.concatenate(originalPrompt, successful), nil
	}

	if s.governor != nil {
		s.governor.RecordUsageDetail(cost.UsageDetail{
			Provider: s.provider,
			Tokens:   synthesized.TokensUsed,
			Model:    synthesized.Model,
		})
	}

	return &SynthesisResult{
		Text:        synthesized.Text,
		Method:      MethodSynthesis,
		Provider:    s.provider,
		SourceCount: len(successful),
	}, nil
}

// buildSynthesisPrompt labels each provider's answer and asks for a single
// reconciled response
func buildSynthesisPrompt(originalPrompt string, results []Result) string {
	var b strings.Builder

	b.WriteString("You are a result synthesis AI. Combine the following answers from independent models into a single coherent response.\n\n")
	b.WriteString(fmt.Sprintf("Original Query: %s\n\n", originalPrompt))
	b.WriteString("Answers:\n\n")

	for i, result := range results {
		b.WriteString(fmt.Sprintf("Answer %d (from %s):\n", i+1, result.Provider))
		b.WriteString(result.Response.Text)
		b.WriteString("\n\n")
	}

	b.WriteString("Instructions:\n")
	b.WriteString("1. Synthesize all answers into a single, coherent response\n")
	b.WriteString("2. Ensure the answer directly addresses the original query\n")
	b.WriteString("3. If answers conflict, reconcile or note the conflict\n")
	b.WriteString("4. Be concise but comprehensive\n\n")
	b.WriteString("Provide your synthesized response:")

	return b.String()
}

// concatenate joins results mechanically when synthesis is unavailable
func (s *Synthesizer) concatenate(originalPrompt string, results []Result) *SynthesisResult {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Results for: %s\n\n", originalPrompt))
	for i, result := range results {
		b.WriteString(fmt.Sprintf("%d. From %s:\n%s\n\n", i+1, result.Provider, result.Response.Text))
	}

	return &SynthesisResult{
		Text:        strings.TrimRight(b.String(), "\n"),
		Method:      MethodConcatenation,
		SourceCount: len(results),
	}
}
