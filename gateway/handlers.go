// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"polyroute/platform/orchestrator/fanout"
	"polyroute/platform/orchestrator/llm"
	"polyroute/platform/orchestrator/router"
)

// RouteRequest is the request body for POST /api/v1/route
type RouteRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	Complexity   string  `json:"complexity,omitempty"`
}

// RouteResponse is the response body for POST /api/v1/route
type RouteResponse struct {
	RequestID  string           `json:"request_id"`
	Provider   string           `json:"provider"`
	Model      string           `json:"model"`
	Pressure   string           `json:"pressure"`
	Text       string           `json:"text"`
	TokensUsed int              `json:"tokens_used"`
	LatencyMS  int64            `json:"latency_ms"`
	Attempts   []router.Attempt `json:"attempts,omitempty"`
}

// handleRoute handles POST /api/v1/route
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		writeError(w, "prompt is required", http.StatusBadRequest)
		return
	}

	complexity := llm.ComplexityMedium
	if req.Complexity != "" {
		parsed, err := llm.ParseComplexity(req.Complexity)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		complexity = parsed
	}

	requestID := requestIDFrom(r.Context())

	result, err := s.router.Route(r.Context(), router.Request{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Complexity:   complexity,
		RequestID:    requestID,
	})
	if err != nil {
		switch {
		case router.IsNoProviderAvailable(err):
			writeError(w, err.Error(), http.StatusServiceUnavailable)
		case router.IsAllProvidersFailed(err):
			writeError(w, err.Error(), http.StatusBadGateway)
		default:
			writeError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, RouteResponse{
		RequestID:  requestID,
		Provider:   result.Provider,
		Model:      result.Response.Model,
		Pressure:   string(result.Pressure),
		Text:       result.Response.Text,
		TokensUsed: result.Response.TokensUsed,
		LatencyMS:  result.Response.Latency.Milliseconds(),
		Attempts:   result.Attempts,
	})
}

// maxFanoutDeadline caps the per-request fan-out deadline a caller may ask
// for
const maxFanoutDeadline = 2 * time.Minute

// FanOutRequest is the request body for POST /api/v1/fanout
type FanOutRequest struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
	Providers    []string `json:"providers,omitempty"`
	Synthesize   bool     `json:"synthesize,omitempty"`

	// DeadlineMS overrides the configured fan-out deadline for this
	// request, up to maxFanoutDeadline. Zero means the configured default.
	DeadlineMS int64 `json:"deadline_ms,omitempty"`
}

// FanOutResponse is the response body for POST /api/v1/fanout
type FanOutResponse struct {
	RequestID        string                  `json:"request_id"`
	Results          []fanout.Result         `json:"results"`
	Successes        int                     `json:"successes"`
	ElapsedMS        int64                   `json:"elapsed_ms"`
	DeadlineExceeded bool                    `json:"deadline_exceeded"`
	Synthesis        *fanout.SynthesisResult `json:"synthesis,omitempty"`
	Error            string                  `json:"error,omitempty"`
}

// handleFanOut handles POST /api/v1/fanout
func (s *Server) handleFanOut(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req FanOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		writeError(w, "prompt is required", http.StatusBadRequest)
		return
	}
	if req.DeadlineMS < 0 {
		writeError(w, "deadline_ms must not be negative", http.StatusBadRequest)
		return
	}

	deadline := time.Duration(req.DeadlineMS) * time.Millisecond
	if deadline > maxFanoutDeadline {
		deadline = maxFanoutDeadline
	}

	genReq := llm.GenerateRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	}

	var resp *fanout.Response
	if len(req.Providers) > 0 {
		resp = s.orchestrator.FanOut(r.Context(), req.Providers, genReq, deadline)
	} else {
		resp = s.orchestrator.FanOutAvailable(r.Context(), genReq, deadline)
	}

	out := FanOutResponse{
		RequestID:        requestIDFrom(r.Context()),
		Results:          resp.Results,
		Successes:        resp.Successes,
		ElapsedMS:        resp.Elapsed.Milliseconds(),
		DeadlineExceeded: resp.DeadlineExceeded,
	}

	if req.Synthesize {
		synthesis, err := s.synthesizer.Synthesize(r.Context(), req.Prompt, resp)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Synthesis = synthesis
		}
	}

	writeJSON(w, http.StatusOK, out)
}

// ValidateRequest is the request body for POST /api/v1/validate
type ValidateRequest struct {
	Content   string   `json:"content"`
	Rubric    string   `json:"rubric,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

// handleValidate handles POST /api/v1/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		writeError(w, "content is required", http.StatusBadRequest)
		return
	}

	providers := req.Providers
	if len(providers) == 0 {
		providers = s.registry.ListAvailable()
	}
	if len(providers) == 0 {
		writeError(w, "no providers available for validation", http.StatusServiceUnavailable)
		return
	}

	report := s.validator.Validate(r.Context(), req.Content, req.Rubric, providers)
	writeJSON(w, http.StatusOK, report)
}

// handleProviders handles GET /api/v1/providers
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": s.registry.Infos(),
	})
}

// handleCostStatus handles GET /api/v1/cost/status
func (s *Server) handleCostStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.governor.Snapshot())
}

// CostResetRequest is the request body for POST /api/v1/cost/reset
type CostResetRequest struct {
	PeriodKey string `json:"period_key"`
}

// handleCostReset handles POST /api/v1/cost/reset (admin only)
func (s *Server) handleCostReset(w http.ResponseWriter, r *http.Request) {
	var req CostResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PeriodKey == "" {
		writeError(w, "period_key is required", http.StatusBadRequest)
		return
	}

	if err := s.governor.ResetPeriod(req.PeriodKey); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.governor.Snapshot())
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"providers": s.registry.ListAvailable(),
		"pressure":  s.governor.CurrentPressure(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
