package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testPool(id, chain, protocol string, tvl, apy float64, risk int) model.Pool {
	return model.Pool{
		Chain:     chain,
		Protocol:  protocol,
		Symbol:    "USDC",
		TVLUSD:    decimal.NewFromFloat(tvl),
		APY:       decimal.NewFromFloat(apy),
		APYBase:   decimal.NewFromFloat(apy),
		APYReward: decimal.Zero,
		RiskScore: risk,
		ILRisk:    model.ILRiskNone,
		PoolID:    id,
	}
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.UpsertPools(context.Background(), []model.Pool{
		testPool("p-1", "Ethereum", "aave-v3", 1_000_000, 4.5, 90),
		testPool("p-2", "Arbitrum", "gmx", 500_000, 25, 60),
		testPool("p-3", "ethereum", "Uniswap-V3", 2_000_000, 12, 70),
		testPool("p-4", "Base", "aerodrome", 100_000, 80, 45),
	}))
}

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.migrate(context.Background()))

	for _, table := range []string{"pools", "ai_settings", "user_sessions", "agent_responses"} {
		var n int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = $1`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}

func TestUpsertPools_ReingestionUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPools(ctx, []model.Pool{testPool("p-1", "Ethereum", "aave-v3", 1_000, 3, 80)}))
	first, err := s.ListPools(ctx, PoolQuery{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	for cycle := 1; cycle <= 5; cycle++ {
		updated := testPool("p-1", "Ethereum", "aave-v3", float64(1_000*(cycle+1)), 3, 80)
		require.NoError(t, s.UpsertPools(ctx, []model.Pool{updated}))
	}

	n, err := s.CountPools(ctx, PoolFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pools, err := s.ListPools(ctx, PoolQuery{})
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, first[0].ID, pools[0].ID)
	assert.True(t, first[0].CreatedAt.Equal(pools[0].CreatedAt))
	assert.True(t, decimal.NewFromInt(6_000).Equal(pools[0].TVLUSD), pools[0].TVLUSD.String())
}

func TestUpsertPools_DuplicateWithinBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpsertPools(ctx, []model.Pool{
		testPool("dup", "Ethereum", "aave-v3", 1, 1, 50),
		testPool("dup", "Ethereum", "aave-v3", 2, 1, 50),
	})
	require.NoError(t, err)

	pools, err := s.ListPools(ctx, PoolQuery{})
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.True(t, decimal.NewFromInt(2).Equal(pools[0].TVLUSD))
}

func TestUpsertPools_EmptyBatch(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.UpsertPools(context.Background(), nil))
}

func TestUpsertPools_FailureIsBatchFailed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	err := s.UpsertPools(context.Background(), []model.Pool{testPool("p", "Ethereum", "x", 1, 1, 1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatchFailed))
}

func TestListPools_FiltersAndSort(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name  string
		query PoolQuery
		want  []string
	}{
		{
			name:  "default sort is apy desc",
			query: PoolQuery{},
			want:  []string{"p-4", "p-2", "p-3", "p-1"},
		},
		{
			name:  "chain is case insensitive",
			query: PoolQuery{PoolFilter: PoolFilter{Chain: "ETHEREUM"}},
			want:  []string{"p-3", "p-1"},
		},
		{
			name:  "protocol substring",
			query: PoolQuery{PoolFilter: PoolFilter{Protocol: "uniswap"}},
			want:  []string{"p-3"},
		},
		{
			name:  "min risk and apy",
			query: PoolQuery{PoolFilter: PoolFilter{MinRiskScore: 60, MinAPY: 10}},
			want:  []string{"p-2", "p-3"},
		},
		{
			name:  "sort by tvl ascending",
			query: PoolQuery{SortBy: "tvl_usd", Ascending: true},
			want:  []string{"p-4", "p-2", "p-1", "p-3"},
		},
		{
			name:  "unknown sort column falls back to apy",
			query: PoolQuery{SortBy: "apy; DROP TABLE pools"},
			want:  []string{"p-4", "p-2", "p-3", "p-1"},
		},
		{
			name:  "pagination",
			query: PoolQuery{Limit: 2, Offset: 1},
			want:  []string{"p-2", "p-3"},
		},
		{
			name:  "offset without limit",
			query: PoolQuery{Offset: 3},
			want:  []string{"p-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pools, err := s.ListPools(ctx, tt.query)
			require.NoError(t, err)
			ids := make([]string, 0, len(pools))
			for _, p := range pools {
				ids = append(ids, p.PoolID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCountPools_Filtered(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	n, err := s.CountPools(context.Background(), PoolFilter{Chain: "ethereum"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTopPoolsByAPY(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := make([]model.Pool, 0, 30)
	for i := 0; i < 30; i++ {
		batch = append(batch, testPool(fmt.Sprintf("p-%02d", i), "Ethereum", "x", 1000, float64(i), 50))
	}
	require.NoError(t, s.UpsertPools(ctx, batch))

	top, err := s.TopPoolsByAPY(ctx, 20)
	require.NoError(t, err)
	require.Len(t, top, 20)
	assert.Equal(t, "p-29", top[0].PoolID)
	assert.Equal(t, "p-10", top[19].PoolID)
}

func TestGetPool(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	pools, err := s.ListPools(ctx, PoolQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, pools, 1)

	got, err := s.GetPool(ctx, pools[0].ID)
	require.NoError(t, err)
	assert.Equal(t, pools[0].PoolID, got.PoolID)
	assert.Equal(t, model.ILRiskNone, got.ILRisk)
	assert.WithinDuration(t, time.Now(), got.LastUpdated, time.Minute)

	_, err = s.GetPool(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPoolStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.PoolStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PoolStats{}, empty)

	seed(t, s)
	stats, err := s.PoolStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalPools)
	assert.Equal(t, 30.38, stats.AverageAPY)
	assert.Equal(t, 3_600_000.0, stats.TotalTVL)
	assert.Equal(t, 4, stats.UniqueChains)
}

func TestAISettings_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetAISettings(ctx, "default_user")
	assert.ErrorIs(t, err, ErrNotFound)

	saved, err := s.SaveAISettings(ctx, model.AISettings{
		UserID:   "default_user",
		Provider: "claude",
		APIKeys:  map[string]string{"claude": "sk-ant", "openai": "sk-oai"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "claude", saved.Provider)

	updated, err := s.SaveAISettings(ctx, model.AISettings{
		UserID:   "default_user",
		Provider: "gemini",
		APIKeys:  map[string]string{"gemini": "g-key"},
	})
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, "gemini", updated.Provider)
	assert.Equal(t, map[string]string{"gemini": "g-key"}, updated.APIKeys)

	_, err = s.SaveAISettings(ctx, model.AISettings{Provider: "openai"})
	assert.Error(t, err)
}
