// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"polyroute/platform/orchestrator/cost"
	"polyroute/platform/orchestrator/fanout"
	"polyroute/platform/orchestrator/llm"
	"polyroute/platform/orchestrator/router"
)

type stubProvider struct {
	name string
	resp *llm.GenerateResponse
	err  error
}

func (s *stubProvider) Name() string                  { return s.name }
func (s *stubProvider) Tier() llm.ProviderTier        { return llm.TierStandard }
func (s *stubProvider) Model() string                 { return s.name + "-model" }
func (s *stubProvider) CostPerMillionTokens() float64 { return 1.0 }
func (s *stubProvider) Generate(_ context.Context, _ llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

var allPressures = []cost.Pressure{cost.PressureNormal, cost.PressureWarning, cost.PressureCritical}

func uniformPolicy(chain ...string) router.Policy {
	p := make(router.Policy)
	for _, complexity := range llm.ValidComplexityTiers {
		for _, pressure := range allPressures {
			p[router.PolicyKey{Complexity: complexity, Pressure: pressure}] = chain
		}
	}
	return p
}

func newTestServer(t *testing.T, registry *llm.Registry, chain []string, adminSecret string) *Server {
	t.Helper()

	cfg := &Config{
		Port:                "8080",
		BudgetCeilingUSD:    100,
		SynthesisProvider:   "anthropic",
		ValidationThreshold: 0.7,
		FanoutDeadline:      2 * time.Second,
		AdminJWTSecret:      adminSecret,
	}

	governor := cost.NewGovernor(cfg.BudgetCeilingUSD, registry)
	rt := router.New(registry, uniformPolicy(chain...), governor, nil)
	orchestrator := fanout.New(registry, governor, cfg.FanoutDeadline, nil)
	synthesizer := fanout.NewSynthesizer(registry, cfg.SynthesisProvider, governor, nil)
	validator := fanout.NewValidator(orchestrator, nil, cfg.ValidationThreshold, nil)

	return NewServer(cfg, registry, governor, rt, orchestrator, synthesizer, validator)
}

func workingRegistry(t *testing.T) *llm.Registry {
	t.Helper()
	registry := llm.NewRegistry()
	_ = registry.Register(&stubProvider{name: "ollama", resp: &llm.GenerateResponse{
		Text: "hello from ollama", Model: "llama3.2", TokensUsed: 12,
	}})
	_ = registry.Register(&stubProvider{name: "openai", resp: &llm.GenerateResponse{
		Text: "hello from openai", Model: "gpt-4o-mini", TokensUsed: 15,
	}})
	return registry
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, workingRegistry(t), []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "GET", "/health", nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["pressure"] != "normal" {
		t.Errorf("pressure = %v", body["pressure"])
	}
}

func TestRouteSuccess(t *testing.T) {
	s := newTestServer(t, workingRegistry(t), []string{"ollama", "openai"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/route",
		RouteRequest{Prompt: "hi", Complexity: "light"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp RouteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Provider != "ollama" {
		t.Errorf("provider = %s", resp.Provider)
	}
	if resp.Text != "hello from ollama" || resp.TokensUsed != 12 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Pressure != "normal" {
		t.Errorf("pressure = %s", resp.Pressure)
	}
	if resp.RequestID == "" {
		t.Error("request_id missing")
	}
	if rec.Header().Get("X-Request-ID") != resp.RequestID {
		t.Error("X-Request-ID header should match body request_id")
	}
}

func TestRouteHonorsRequestIDHeader(t *testing.T) {
	s := newTestServer(t, workingRegistry(t), []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/route",
		RouteRequest{Prompt: "hi"}, map[string]string{"X-Request-ID": "trace-123"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp RouteResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.RequestID != "trace-123" {
		t.Errorf("request_id = %s, want trace-123", resp.RequestID)
	}
}

func TestRouteBadRequests(t *testing.T) {
	s := newTestServer(t, workingRegistry(t), []string{"ollama"}, "")
	handler := s.Handler()

	cases := []struct {
		name string
		body interface{}
	}{
		{"empty prompt", RouteRequest{Prompt: ""}},
		{"bad complexity", RouteRequest{Prompt: "hi", Complexity: "extreme"}},
	}
	for _, tc := range cases {
		rec := doJSON(t, handler, "POST", "/api/v1/route", tc.body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/api/v1/route", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}
}

func TestRouteNoProviderAvailable(t *testing.T) {
	registry := llm.NewRegistry()
	_ = registry.RegisterUnavailable(llm.ProviderInfo{Name: "ollama"})

	s := newTestServer(t, registry, []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/route", RouteRequest{Prompt: "hi"}, nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != http.StatusText(http.StatusServiceUnavailable) {
		t.Errorf("error field = %q", body["error"])
	}
}

func TestRouteAllProvidersFailed(t *testing.T) {
	registry := llm.NewRegistry()
	_ = registry.Register(&stubProvider{name: "ollama", err: llm.WrapHTTPStatus("ollama", 500, "boom", nil)})

	s := newTestServer(t, registry, []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/route", RouteRequest{Prompt: "hi"}, nil)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestFanOutEndpoint(t *testing.T) {
	s := newTestServer(t, workingRegistry(t), []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/fanout",
		FanOutRequest{Prompt: "hi", Providers: []string{"ollama", "openai"}}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp FanOutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Successes != 2 || len(resp.Results) != 2 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Results[0].Provider != "ollama" || resp.Results[1].Provider != "openai" {
		t.Errorf("result order = %+v", resp.Results)
	}
}

func TestFanOutSynthesizeErrorStillOK(t *testing.T) {
	// Every provider fails, so synthesis has nothing to combine. The fan-out
	// response itself is still 200 with the error reported in the body.
	registry := llm.NewRegistry()
	_ = registry.Register(&stubProvider{name: "ollama", err: llm.WrapHTTPStatus("ollama", 500, "boom", nil)})

	s := newTestServer(t, registry, []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/fanout",
		FanOutRequest{Prompt: "hi", Providers: []string{"ollama"}, Synthesize: true}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp FanOutResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error == "" {
		t.Error("expected synthesis error in body")
	}
	if resp.Synthesis != nil {
		t.Error("synthesis should be absent when it failed")
	}
}

func TestValidateEndpoint(t *testing.T) {
	registry := llm.NewRegistry()
	_ = registry.Register(&stubProvider{name: "ollama", resp: &llm.GenerateResponse{Text: "YES\nfine"}})
	_ = registry.Register(&stubProvider{name: "openai", resp: &llm.GenerateResponse{Text: "yes"}})

	s := newTestServer(t, registry, []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/validate",
		ValidateRequest{Content: "claim"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report fanout.ValidationReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !report.Passed || report.Approvals != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestValidateNoProvidersAvailable(t *testing.T) {
	registry := llm.NewRegistry()
	_ = registry.RegisterUnavailable(llm.ProviderInfo{Name: "ollama"})

	s := newTestServer(t, registry, []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/validate",
		ValidateRequest{Content: "claim"}, nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestProvidersEndpoint(t *testing.T) {
	s := newTestServer(t, workingRegistry(t), []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "GET", "/api/v1/providers", nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Providers []llm.ProviderInfo `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Providers) != 2 {
		t.Errorf("providers = %+v", body.Providers)
	}
}

func TestCostStatusEndpoint(t *testing.T) {
	s := newTestServer(t, workingRegistry(t), []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "GET", "/api/v1/cost/status", nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status cost.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Pressure != cost.PressureNormal {
		t.Errorf("pressure = %s", status.Pressure)
	}
}

func adminToken(t *testing.T, secret, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestCostResetAuth(t *testing.T) {
	const secret = "test-admin-secret"
	body := CostResetRequest{PeriodKey: cost.PeriodKeyFor(time.Now().UTC())}

	t.Run("disabled without secret", func(t *testing.T) {
		s := newTestServer(t, workingRegistry(t), []string{"ollama"}, "")
		rec := doJSON(t, s.Handler(), "POST", "/api/v1/cost/reset", body, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		s := newTestServer(t, workingRegistry(t), []string{"ollama"}, secret)
		rec := doJSON(t, s.Handler(), "POST", "/api/v1/cost/reset", body, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		s := newTestServer(t, workingRegistry(t), []string{"ollama"}, secret)
		rec := doJSON(t, s.Handler(), "POST", "/api/v1/cost/reset", body,
			map[string]string{"Authorization": "Bearer not-a-jwt"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong signing secret", func(t *testing.T) {
		s := newTestServer(t, workingRegistry(t), []string{"ollama"}, secret)
		rec := doJSON(t, s.Handler(), "POST", "/api/v1/cost/reset", body,
			map[string]string{"Authorization": "Bearer " + adminToken(t, "other-secret", "admin")})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("non admin role", func(t *testing.T) {
		s := newTestServer(t, workingRegistry(t), []string{"ollama"}, secret)
		rec := doJSON(t, s.Handler(), "POST", "/api/v1/cost/reset", body,
			map[string]string{"Authorization": "Bearer " + adminToken(t, secret, "viewer")})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("admin resets period", func(t *testing.T) {
		s := newTestServer(t, workingRegistry(t), []string{"ollama"}, secret)
		rec := doJSON(t, s.Handler(), "POST", "/api/v1/cost/reset", body,
			map[string]string{"Authorization": "Bearer " + adminToken(t, secret, "admin")})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var status cost.Status
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if status.SpentUSD != 0 {
			t.Errorf("spent after reset = %f", status.SpentUSD)
		}
	})

	t.Run("invalid period key", func(t *testing.T) {
		s := newTestServer(t, workingRegistry(t), []string{"ollama"}, secret)
		rec := doJSON(t, s.Handler(), "POST", "/api/v1/cost/reset",
			CostResetRequest{PeriodKey: "2026-13"},
			map[string]string{"Authorization": "Bearer " + adminToken(t, secret, "admin")})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

// capturingProvider records the last prompt it received
type capturingProvider struct {
	stubProvider
	lastPrompt string
}

func (c *capturingProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	c.lastPrompt = req.Prompt
	return c.stubProvider.Generate(ctx, req)
}

func TestValidateThreadsRubric(t *testing.T) {
	judge := &capturingProvider{stubProvider: stubProvider{
		name: "ollama", resp: &llm.GenerateResponse{Text: "yes"},
	}}
	registry := llm.NewRegistry()
	_ = registry.Register(judge)

	s := newTestServer(t, registry, []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/validate",
		ValidateRequest{Content: "the draft", Rubric: "must mention refund policy"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(judge.lastPrompt, "must mention refund policy") {
		t.Errorf("provider prompt missing rubric: %q", judge.lastPrompt)
	}
}

func TestFanOutRejectsNegativeDeadline(t *testing.T) {
	s := newTestServer(t, workingRegistry(t), []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/fanout",
		FanOutRequest{Prompt: "hi", Providers: []string{"ollama"}, DeadlineMS: -1}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFanOutReportsDeadlineExceeded(t *testing.T) {
	s := newTestServer(t, workingRegistry(t), []string{"ollama"}, "")

	rec := doJSON(t, s.Handler(), "POST", "/api/v1/fanout",
		FanOutRequest{Prompt: "hi", Providers: []string{"ollama"}, DeadlineMS: 500}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp FanOutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DeadlineExceeded {
		t.Error("instant providers should finish within the requested deadline")
	}
}
