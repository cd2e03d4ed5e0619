// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// LedgerStore persists ledger state across restarts
type LedgerStore interface {
	// Save writes the full ledger state for state.PeriodKey
	Save(ctx context.Context, state LedgerState) error

	// Load reads the ledger state for a period. Returns ErrLedgerNotFound
	// when no state has been saved for that period.
	Load(ctx context.Context, periodKey string) (*LedgerState, error)
}

// ledgerTTL keeps old period ledgers around for three months before expiry
const ledgerTTL = 90 * 24 * time.Hour

// RedisLedgerStore persists ledger state as JSON in Redis, one key per
// billing period
type RedisLedgerStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisLedgerStore creates a ledger store backed by the given Redis client
func NewRedisLedgerStore(client *redis.Client) *RedisLedgerStore {
	return &RedisLedgerStore{
		client:    client,
		keyPrefix: "polyroute:ledger:",
	}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisLedgerStore) key(periodKey string) string {
	return s.keyPrefix + periodKey
}

// Save writes the ledger state for its period
func (s *RedisLedgerStore) Save(ctx context.Context, state LedgerState) error {
	if !ValidPeriodKey(state.PeriodKey) {
		return ErrInvalidPeriodKey
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger state: %w", err)
	}

	if err := s.client.Set(ctx, s.key(state.PeriodKey), data, ledgerTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Load reads the ledger state for a period
func (s *RedisLedgerStore) Load(ctx context.Context, periodKey string) (*LedgerState, error) {
	if !ValidPeriodKey(periodKey) {
		return nil, ErrInvalidPeriodKey
	}

	data, err := s.client.Get(ctx, s.key(periodKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrLedgerNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var state LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger state: %w", err)
	}
	return &state, nil
}
