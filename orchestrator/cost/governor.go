// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

// Package cost tracks LLM spend against a monthly budget ceiling and reports
// the resulting budget pressure to the routing layer.
package cost

import (
	"context"
	"log"
	"regexp"
	"sync"
	"time"
)

// Pressure describes how much of the budget ceiling has been consumed
type Pressure string

const (
	// PressureNormal means less than 50% of the ceiling is spent
	PressureNormal Pressure = "normal"

	// PressureWarning means between 50% and 90% of the ceiling is spent
	PressureWarning Pressure = "warning"

	// PressureCritical means more than 90% of the ceiling is spent
	PressureCritical Pressure = "critical"
)

// Pressure thresholds as fractions of the budget ceiling
const (
	warningThreshold  = 0.50
	criticalThreshold = 0.90
)

// periodKeyPattern matches YYYY-MM period keys
var periodKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// PeriodKeyFor returns the period key for the month containing t, in UTC
func PeriodKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ValidPeriodKey reports whether key is a well-formed YYYY-MM period key
func ValidPeriodKey(key string) bool {
	return periodKeyPattern.MatchString(key)
}

// RateSource provides the blended per-million-token rate for a provider.
// Unknown providers must return 0 so usage recording never fails.
type RateSource interface {
	Rate(provider string) float64
}

// ProviderUsage is the accumulated usage for one provider in the current period
type ProviderUsage struct {
	CostUSD  float64 `json:"cost_usd"`
	Tokens   int64   `json:"tokens"`
	Requests int64   `json:"requests"`
}

// LedgerState is a snapshot of the spend ledger, suitable for persistence
type LedgerState struct {
	PeriodKey   string                   `json:"period_key"`
	SpentUSD    float64                  `json:"spent_usd"`
	PerProvider map[string]ProviderUsage `json:"per_provider"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Status is the externally visible view of the governor
type Status struct {
	PeriodKey   string                   `json:"period_key"`
	CeilingUSD  float64                  `json:"ceiling_usd"`
	SpentUSD    float64                  `json:"spent_usd"`
	Utilization float64                  `json:"utilization"`
	Pressure    Pressure                 `json:"pressure"`
	PerProvider map[string]ProviderUsage `json:"per_provider"`
}

// Governor tracks spend against a monthly ceiling.
//
// All recording operations are infallible: pricing lookups for unknown
// providers yield zero cost, and persistence failures are logged, never
// surfaced to callers. The ledger is the in-memory source of truth; the
// optional store is write-through for recovery after restart.
type Governor struct {
	mu          sync.Mutex
	ceiling     float64
	spent       float64
	perProvider map[string]ProviderUsage
	periodKey   string

	rates  RateSource
	store  LedgerStore
	audit  AuditSink
	logger *log.Logger
	now    func() time.Time
}

// GovernorOption configures a Governor
type GovernorOption func(*Governor)

// WithStore sets a write-through ledger store
func WithStore(store LedgerStore) GovernorOption {
	return func(g *Governor) { g.store = store }
}

// WithAudit sets an audit sink for per-request usage records
func WithAudit(audit AuditSink) GovernorOption {
	return func(g *Governor) { g.audit = audit }
}

// WithLogger sets the governor's logger
func WithLogger(logger *log.Logger) GovernorOption {
	return func(g *Governor) { g.logger = logger }
}

// WithClock overrides the time source (used in tests)
func WithClock(now func() time.Time) GovernorOption {
	return func(g *Governor) { g.now = now }
}

// NewGovernor creates a governor with the given monthly ceiling in USD.
// A ceiling of zero or less disables budget enforcement and pressure is
// always normal.
func NewGovernor(ceilingUSD float64, rates RateSource, opts ...GovernorOption) *Governor {
	g := &Governor{
		ceiling:     ceilingUSD,
		perProvider: make(map[string]ProviderUsage),
		rates:       rates,
		logger:      log.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.periodKey = PeriodKeyFor(g.now())
	return g
}

// Restore loads persisted ledger state for the current period from the store,
// if one is configured. Missing state is not an error.
func (g *Governor) Restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}

	g.mu.Lock()
	period := g.periodKey
	g.mu.Unlock()

	state, err := g.store.Load(ctx, period)
	if err != nil {
		if err == ErrLedgerNotFound {
			return nil
		}
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if state.PeriodKey != g.periodKey {
		return nil
	}
	g.spent = state.SpentUSD
	g.perProvider = make(map[string]ProviderUsage, len(state.PerProvider))
	for name, usage := range state.PerProvider {
		g.perProvider[name] = usage
	}
	g.logger.Printf("[Cost] Restored ledger for period %s: $%.4f spent across %d providers",
		state.PeriodKey, state.SpentUSD, len(state.PerProvider))
	return nil
}

// UsageDetail describes a completed billable request
type UsageDetail struct {
	Provider   string
	Tokens     int
	Model      string
	Complexity string
	RequestID  string
}

// RecordUsage adds the cost of a completed request to the ledger. It never
// fails: unknown providers are priced at zero and persistence errors are
// logged only.
func (g *Governor) RecordUsage(provider string, tokens int) {
	g.RecordUsageDetail(UsageDetail{Provider: provider, Tokens: tokens})
}

// RecordUsageDetail is RecordUsage with request metadata for the audit trail
func (g *Governor) RecordUsageDetail(detail UsageDetail) {
	rate := 0.0
	if g.rates != nil {
		rate = g.rates.Rate(detail.Provider)
	}
	costUSD := rate * float64(detail.Tokens) / 1_000_000

	g.mu.Lock()
	g.rollPeriodLocked()

	usage := g.perProvider[detail.Provider]
	usage.CostUSD += costUSD
	usage.Tokens += int64(detail.Tokens)
	usage.Requests++
	g.perProvider[detail.Provider] = usage
	g.spent += costUSD

	state := g.stateLocked()
	pressure := g.pressureLocked()
	g.mu.Unlock()

	costSpentTotal.WithLabelValues(detail.Provider).Add(costUSD)
	budgetUtilization.Set(state.SpentUSD / maxCeiling(g.ceiling))
	setPressureGauge(pressure)

	if pressure == PressureCritical {
		g.logger.Printf("[Cost] ALERT: budget pressure critical, $%.4f of $%.2f spent (period %s)",
			state.SpentUSD, g.ceiling, state.PeriodKey)
	}

	g.persist(state, AuditEntry{
		Provider:   detail.Provider,
		Model:      detail.Model,
		Tokens:     detail.Tokens,
		CostUSD:    costUSD,
		Complexity: detail.Complexity,
		RequestID:  detail.RequestID,
		Timestamp:  g.now().UTC(),
	})
}

// persist writes ledger state and the audit record without blocking the caller
func (g *Governor) persist(state LedgerState, entry AuditEntry) {
	if g.store == nil && g.audit == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if g.store != nil {
			if err := g.store.Save(ctx, state); err != nil {
				g.logger.Printf("[Cost] WARNING: failed to persist ledger: %v", err)
			}
		}
		if g.audit != nil {
			if err := g.audit.Record(ctx, entry); err != nil {
				g.logger.Printf("[Cost] WARNING: failed to record usage audit: %v", err)
			}
		}
	}()
}

// CurrentPressure returns the budget pressure for the current period
func (g *Governor) CurrentPressure() Pressure {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollPeriodLocked()
	return g.pressureLocked()
}

// Snapshot returns a point-in-time view of the ledger
func (g *Governor) Snapshot() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollPeriodLocked()

	perProvider := make(map[string]ProviderUsage, len(g.perProvider))
	for name, usage := range g.perProvider {
		perProvider[name] = usage
	}

	utilization := 0.0
	if g.ceiling > 0 {
		utilization = g.spent / g.ceiling
	}

	return Status{
		PeriodKey:   g.periodKey,
		CeilingUSD:  g.ceiling,
		SpentUSD:    g.spent,
		Utilization: utilization,
		Pressure:    g.pressureLocked(),
		PerProvider: perProvider,
	}
}

// ResetPeriod zeroes the ledger for a new billing period. The reset is
// idempotent: repeated calls with the same period key leave an already reset
// ledger untouched.
func (g *Governor) ResetPeriod(periodKey string) error {
	if !ValidPeriodKey(periodKey) {
		return ErrInvalidPeriodKey
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if periodKey == g.periodKey && g.spent == 0 && len(g.perProvider) == 0 {
		return nil
	}
	if periodKey == g.periodKey {
		// Explicit reset of the active period zeroes accumulated spend
		g.logger.Printf("[Cost] Resetting ledger for period %s (was $%.4f)", periodKey, g.spent)
	} else {
		g.logger.Printf("[Cost] Rolling ledger from period %s to %s", g.periodKey, periodKey)
	}

	g.periodKey = periodKey
	g.spent = 0
	g.perProvider = make(map[string]ProviderUsage)

	budgetUtilization.Set(0)
	setPressureGauge(PressureNormal)
	return nil
}

// rollPeriodLocked resets the ledger when the wall clock has crossed into a
// new month. Callers must hold g.mu.
func (g *Governor) rollPeriodLocked() {
	current := PeriodKeyFor(g.now())
	if current == g.periodKey {
		return
	}
	g.logger.Printf("[Cost] Rolling ledger from period %s to %s", g.periodKey, current)
	g.periodKey = current
	g.spent = 0
	g.perProvider = make(map[string]ProviderUsage)
}

// pressureLocked computes pressure from spend. Callers must hold g.mu.
func (g *Governor) pressureLocked() Pressure {
	if g.ceiling <= 0 {
		return PressureNormal
	}
	utilization := g.spent / g.ceiling
	switch {
	case utilization > criticalThreshold:
		return PressureCritical
	case utilization >= warningThreshold:
		return PressureWarning
	default:
		return PressureNormal
	}
}

// stateLocked builds a LedgerState copy. Callers must hold g.mu.
func (g *Governor) stateLocked() LedgerState {
	perProvider := make(map[string]ProviderUsage, len(g.perProvider))
	for name, usage := range g.perProvider {
		perProvider[name] = usage
	}
	return LedgerState{
		PeriodKey:   g.periodKey,
		SpentUSD:    g.spent,
		PerProvider: perProvider,
		UpdatedAt:   g.now().UTC(),
	}
}

func maxCeiling(ceiling float64) float64 {
	if ceiling <= 0 {
		return 1
	}
	return ceiling
}
