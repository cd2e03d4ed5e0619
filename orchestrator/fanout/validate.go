// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package fanout

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"polyroute/platform/orchestrator/llm"
)

// DefaultApprovalThreshold is the fraction of targeted providers that must
// approve for a validation to pass
const DefaultApprovalThreshold = 0.7

// Verdict is one provider's vote on a validation
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"

	// VerdictError marks a provider that failed to answer. Errored
	// providers still count toward the denominator, so failures lower the
	// approval ratio rather than shrinking the electorate.
	VerdictError Verdict = "error"
)

// VerdictClassifier turns a provider's free-text answer into a vote
type VerdictClassifier interface {
	Classify(text string) Verdict
}

// KeywordClassifier reads the leading YES/NO of an answer. It is the default
// classifier and matches the instruction format of the validation prompt.
type KeywordClassifier struct{}

// Classify returns approve when the answer leads with an affirmative
func (KeywordClassifier) Classify(text string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(normalized, "yes"), strings.HasPrefix(normalized, "approve"):
		return VerdictApprove
	default:
		return VerdictReject
	}
}

// ProviderVerdict is one provider's classified vote
type ProviderVerdict struct {
	Provider string        `json:"provider"`
	Verdict  Verdict       `json:"verdict"`
	Answer   string        `json:"answer,omitempty"`
	Error    string        `json:"error,omitempty"`
	Latency  time.Duration `json:"latency_ms"`
}

// ValidationReport is the aggregate outcome of a parallel validation
type ValidationReport struct {
	Verdicts  []ProviderVerdict `json:"verdicts"`
	Approvals int               `json:"approvals"`
	Total     int               `json:"total"`
	Ratio     float64           `json:"ratio"`
	Threshold float64           `json:"threshold"`
	Passed    bool              `json:"passed"`
}

// Validator runs a validation prompt across several providers in parallel
// and tallies their votes
type Validator struct {
	orchestrator *Orchestrator
	classifier   VerdictClassifier
	threshold    float64
	logger       *log.Logger
}

// NewValidator creates a validator. A nil classifier selects
// KeywordClassifier; a threshold of zero or less selects
// DefaultApprovalThreshold.
func NewValidator(orchestrator *Orchestrator, classifier VerdictClassifier, threshold float64, logger *log.Logger) *Validator {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	if threshold <= 0 {
		threshold = DefaultApprovalThreshold
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Validator{
		orchestrator: orchestrator,
		classifier:   classifier,
		threshold:    threshold,
		logger:       logger,
	}
}

// Validate asks every named provider to judge the content against the
// caller's rubric and tallies the approvals. An empty rubric falls back to a
// generic correctness instruction. The ratio divides by all targeted
// providers, so a provider that errors or times out counts against approval.
func (v *Validator) Validate(ctx context.Context, content, rubric string, providers []string) *ValidationReport {
	prompt := buildValidationPrompt(content, rubric)

	resp := v.orchestrator.FanOut(ctx, providers, llm.GenerateRequest{Prompt: prompt}, 0)

	verdicts := make([]ProviderVerdict, 0, len(resp.Results))
	approvals := 0
	for _, result := range resp.Results {
		pv := ProviderVerdict{Provider: result.Provider, Latency: result.Latency}
		if !result.Success() {
			pv.Verdict = VerdictError
			pv.Error = result.Error
		} else {
			pv.Verdict = v.classifier.Classify(result.Response.Text)
			pv.Answer = result.Response.Text
			if pv.Verdict == VerdictApprove {
				approvals++
			}
		}
		verdicts = append(verdicts, pv)
	}

	total := len(resp.Results)
	ratio := 0.0
	if total > 0 {
		ratio = float64(approvals) / float64(total)
	}
	passed := total > 0 && ratio >= v.threshold

	v.logger.Printf("[Validate] %d/%d approvals (ratio=%.2f, threshold=%.2f, passed=%t)",
		approvals, total, ratio, v.threshold, passed)

	return &ValidationReport{
		Verdicts:  verdicts,
		Approvals: approvals,
		Total:     total,
		Ratio:     ratio,
		Threshold: v.threshold,
		Passed:    passed,
	}
}

// buildValidationPrompt wraps the content and rubric in a YES/NO judging
// instruction
func buildValidationPrompt(content, rubric string) string {
	var b strings.Builder
	if rubric != "" {
		b.WriteString("You are a validation AI. Judge whether the following content satisfies the rubric.\n\n")
		b.WriteString(fmt.Sprintf("Rubric:\n%s\n\n", rubric))
	} else {
		b.WriteString("You are a validation AI. Judge whether the following content is correct, safe, and responsive.\n\n")
	}
	b.WriteString(fmt.Sprintf("Content:\n%s\n\n", content))
	b.WriteString("Answer YES or NO on the first line, then a one-sentence justification.")
	return b.String()
}
