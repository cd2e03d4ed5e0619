// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestStore(t *testing.T) *RedisLedgerStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLedgerStore(client)
}

func TestRedisStoreSaveLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := LedgerState{
		PeriodKey: "2026-08",
		SpentUSD:  12.34,
		PerProvider: map[string]ProviderUsage{
			"anthropic": {CostUSD: 9.0, Tokens: 1_000_000, Requests: 4},
			"openai":    {CostUSD: 3.34, Tokens: 1_336_000, Requests: 10},
		},
		UpdatedAt: time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
	}

	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "2026-08")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SpentUSD != 12.34 {
		t.Errorf("spent = %g, want 12.34", loaded.SpentUSD)
	}
	if loaded.PerProvider["anthropic"].Requests != 4 {
		t.Errorf("anthropic requests = %d, want 4", loaded.PerProvider["anthropic"].Requests)
	}
}

func TestRedisStoreSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := LedgerState{PeriodKey: "2026-08", SpentUSD: 1.0, PerProvider: map[string]ProviderUsage{}}
	second := LedgerState{PeriodKey: "2026-08", SpentUSD: 2.0, PerProvider: map[string]ProviderUsage{}}

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "2026-08")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SpentUSD != 2.0 {
		t.Errorf("spent = %g, want 2.0", loaded.SpentUSD)
	}
}

func TestRedisStoreLoadMissing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Load(context.Background(), "2026-01"); err != ErrLedgerNotFound {
		t.Errorf("Load = %v, want ErrLedgerNotFound", err)
	}
}

func TestRedisStoreInvalidPeriodKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, LedgerState{PeriodKey: "bogus"}); err != ErrInvalidPeriodKey {
		t.Errorf("Save = %v, want ErrInvalidPeriodKey", err)
	}
	if _, err := store.Load(ctx, "not-a-period"); err != ErrInvalidPeriodKey {
		t.Errorf("Load = %v, want ErrInvalidPeriodKey", err)
	}
}

func TestRedisStorePeriodsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = store.Save(ctx, LedgerState{PeriodKey: "2026-08", SpentUSD: 8.0, PerProvider: map[string]ProviderUsage{}})
	_ = store.Save(ctx, LedgerState{PeriodKey: "2026-09", SpentUSD: 9.0, PerProvider: map[string]ProviderUsage{}})

	aug, err := store.Load(ctx, "2026-08")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	sep, err := store.Load(ctx, "2026-09")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if aug.SpentUSD != 8.0 || sep.SpentUSD != 9.0 {
		t.Errorf("periods mixed up: aug=%g sep=%g", aug.SpentUSD, sep.SpentUSD)
	}
}

func TestGovernorWriteThroughToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisLedgerStore(client)

	g := NewGovernor(100, testRates(), WithStore(store), WithClock(fixedClock(august)))
	g.RecordUsage("anthropic", 1_000_000)

	// Persistence is asynchronous
	deadline := time.Now().Add(2 * time.Second)
	for {
		state, err := store.Load(context.Background(), "2026-08")
		if err == nil && almostEqual(state.SpentUSD, 9.0) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ledger never persisted: state=%v err=%v", state, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
