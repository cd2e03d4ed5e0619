// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

// Package gateway wires the routing, fan-out and cost subsystems behind an
// HTTP API.
package gateway

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"polyroute/platform/orchestrator/cost"
	"polyroute/platform/orchestrator/fanout"
	"polyroute/platform/orchestrator/llm"
	"polyroute/platform/orchestrator/router"
	"polyroute/platform/shared/logger"
)

// Server bundles the gateway's subsystems behind HTTP handlers
type Server struct {
	cfg          *Config
	registry     *llm.Registry
	governor     *cost.Governor
	router       *router.Router
	orchestrator *fanout.Orchestrator
	synthesizer  *fanout.Synthesizer
	validator    *fanout.Validator
	log          *logger.Logger
}

// NewServer builds a server from already constructed subsystems. Used
// directly by tests; production wiring goes through Run.
func NewServer(cfg *Config, registry *llm.Registry, governor *cost.Governor, rt *router.Router, orchestrator *fanout.Orchestrator, synthesizer *fanout.Synthesizer, validator *fanout.Validator) *Server {
	return &Server{
		cfg:          cfg,
		registry:     registry,
		governor:     governor,
		router:       rt,
		orchestrator: orchestrator,
		synthesizer:  synthesizer,
		validator:    validator,
		log:          logger.New("gateway"),
	}
}

// Handler returns the fully routed HTTP handler, including CORS
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requestIDMiddleware)
	api.Use(s.loggingMiddleware)

	api.HandleFunc("/route", s.handleRoute).Methods("POST", "OPTIONS")
	api.HandleFunc("/fanout", s.handleFanOut).Methods("POST", "OPTIONS")
	api.HandleFunc("/validate", s.handleValidate).Methods("POST", "OPTIONS")
	api.HandleFunc("/providers", s.handleProviders).Methods("GET", "OPTIONS")
	api.HandleFunc("/cost/status", s.handleCostStatus).Methods("GET", "OPTIONS")
	api.Handle("/cost/reset", s.adminOnly(http.HandlerFunc(s.handleCostReset))).Methods("POST", "OPTIONS")

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}

// Run is the exported entry point for the gateway service.
//
// It loads configuration, constructs the provider registry, cost governor,
// router and fan-out orchestrator, sets up HTTP routes, and starts the
// server. The function blocks until the server exits.
func Run() {
	log.Println("Starting PolyRoute gateway...")

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx := context.Background()

	var resolver llm.CredentialResolver
	if cfg.usesSecretsManager() {
		resolver, err = llm.NewSecretsManagerResolver(ctx, llm.SecretsManagerResolverOptions{Region: cfg.AWSRegion})
		if err != nil {
			log.Fatalf("Failed to initialize Secrets Manager resolver: %v", err)
		}
	}

	registry, err := llm.BuildRegistry(ctx, llm.BootstrapConfig{
		AnthropicAPIKey:    cfg.AnthropicAPIKey,
		AnthropicSecretARN: cfg.AnthropicSecretARN,
		AnthropicModel:     cfg.AnthropicModel,
		OpenAIAPIKey:       cfg.OpenAIAPIKey,
		OpenAISecretARN:    cfg.OpenAISecretARN,
		OpenAIModel:        cfg.OpenAIModel,
		OllamaEndpoint:     cfg.OllamaEndpoint,
		OllamaModel:        cfg.OllamaModel,
		BedrockRegion:      cfg.BedrockRegion,
		BedrockModel:       cfg.BedrockModel,
	}, resolver)
	if err != nil {
		log.Fatalf("Failed to build provider registry: %v", err)
	}

	governorOpts := []cost.GovernorOption{}
	if cfg.RedisAddr != "" {
		redisClient, err := cost.NewRedisClient(cfg.RedisAddr)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		governorOpts = append(governorOpts, cost.WithStore(cost.NewRedisLedgerStore(redisClient)))
	}
	if cfg.DatabaseURL != "" {
		db, err := cost.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		governorOpts = append(governorOpts, cost.WithAudit(cost.NewPostgresAuditRepository(db)))
	} else {
		governorOpts = append(governorOpts, cost.WithAudit(cost.NewLogAuditSink(nil)))
	}

	governor := cost.NewGovernor(cfg.BudgetCeilingUSD, registry, governorOpts...)
	if err := governor.Restore(ctx); err != nil {
		log.Printf("WARNING: failed to restore spend ledger: %v", err)
	}

	policy := router.DefaultPolicy()
	if cfg.RoutingPolicyFile != "" {
		policy, err = router.LoadPolicyFile(cfg.RoutingPolicyFile)
		if err != nil {
			log.Fatalf("Failed to load routing policy: %v", err)
		}
	}
	if err := policy.Validate(registry); err != nil {
		log.Fatalf("Routing policy validation failed: %v", err)
	}

	rt := router.New(registry, policy, governor, nil)
	orchestrator := fanout.New(registry, governor, cfg.FanoutDeadline, nil)
	synthesizer := fanout.NewSynthesizer(registry, cfg.SynthesisProvider, governor, nil)
	validator := fanout.NewValidator(orchestrator, nil, cfg.ValidationThreshold, nil)

	server := NewServer(cfg, registry, governor, rt, orchestrator, synthesizer, validator)

	log.Printf("PolyRoute gateway listening on port %s (providers: %v)", cfg.Port, registry.ListAvailable())
	log.Fatal(http.ListenAndServe(":"+cfg.Port, server.Handler()))
}
