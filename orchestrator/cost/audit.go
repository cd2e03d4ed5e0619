// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver
)

// AuditEntry records a single billable LLM request
type AuditEntry struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model,omitempty"`
	Tokens     int       `json:"tokens"`
	CostUSD    float64   `json:"cost_usd"`
	Complexity string    `json:"complexity,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditSink receives usage records for offline reporting. Implementations
// must tolerate high call rates; the governor invokes Record asynchronously.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// PostgresAuditRepository stores usage records in PostgreSQL
type PostgresAuditRepository struct {
	db *sql.DB
}

// NewPostgresAuditRepository creates a repository using an existing DB handle
func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

// OpenPostgres opens and verifies a PostgreSQL connection
func OpenPostgres(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Record inserts a usage record
func (r *PostgresAuditRepository) Record(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO llm_usage_audit (
			id, provider, model, tokens, cost_usd, complexity, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Provider,
		nullString(entry.Model),
		entry.Tokens,
		entry.CostUSD,
		nullString(entry.Complexity),
		nullString(entry.RequestID),
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage audit record: %w", err)
	}
	return nil
}

// ProviderTotals sums audited spend per provider for a period
func (r *PostgresAuditRepository) ProviderTotals(ctx context.Context, periodKey string) (map[string]float64, error) {
	if !ValidPeriodKey(periodKey) {
		return nil, ErrInvalidPeriodKey
	}

	query := `
		SELECT provider, COALESCE(SUM(cost_usd), 0)
		FROM llm_usage_audit
		WHERE to_char(created_at, 'YYYY-MM') = $1
		GROUP BY provider`

	rows, err := r.db.QueryContext(ctx, query, periodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage totals: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	totals := make(map[string]float64)
	for rows.Next() {
		var provider string
		var total float64
		if err := rows.Scan(&provider, &total); err != nil {
			return nil, fmt.Errorf("failed to scan usage total: %w", err)
		}
		totals[provider] = total
	}
	return totals, rows.Err()
}

// nullString converts empty strings to SQL NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// LogAuditSink writes usage records to the process log. Used when no
// database is configured.
type LogAuditSink struct {
	logger *log.Logger
}

// NewLogAuditSink creates a log-backed audit sink
func NewLogAuditSink(logger *log.Logger) *LogAuditSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogAuditSink{logger: logger}
}

// Record logs the usage record
func (s *LogAuditSink) Record(_ context.Context, entry AuditEntry) error {
	s.logger.Printf("[Cost] usage provider=%s tokens=%d cost=$%.6f request_id=%s",
		entry.Provider, entry.Tokens, entry.CostUSD, entry.RequestID)
	return nil
}
