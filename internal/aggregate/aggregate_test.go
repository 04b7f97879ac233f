package aggregate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

func pool(chain string, tvl, apy float64, risk int) model.Pool {
	return model.Pool{
		Chain:     chain,
		TVLUSD:    decimal.NewFromFloat(tvl),
		APY:       decimal.NewFromFloat(apy),
		RiskScore: risk,
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name  string
		pools []model.Pool
		want  Summary
	}{
		{
			name:  "empty input",
			pools: nil,
			want:  Summary{},
		},
		{
			name:  "single pool",
			pools: []model.Pool{pool("Ethereum", 1000, 7.5, 80)},
			want:  Summary{BestAPY: 7.5, AvgRiskScore: 80},
		},
		{
			name: "multiple pools",
			pools: []model.Pool{
				pool("Ethereum", 1000, 5, 90),
				pool("Base", 2000, 42.5, 55),
				pool("Arbitrum", 3000, 12, 70),
			},
			want: Summary{BestAPY: 42.5, AvgRiskScore: 215.0 / 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.pools))
		})
	}
}

func TestTVLWeightedAPY(t *testing.T) {
	tests := []struct {
		name  string
		pools []model.Pool
		want  float64
	}{
		{
			name:  "empty input",
			pools: []model.Pool{},
			want:  0,
		},
		{
			name: "multiple pools",
			pools: []model.Pool{
				pool("Ethereum", 1000, 5, 0),
				pool("Ethereum", 2000, 10, 0),
			},
			want: 8.333333333333334, // (5*1000 + 10*2000)/3000
		},
		{
			name: "zero tvl ignored",
			pools: []model.Pool{
				pool("Ethereum", 0, 500, 0),
				pool("Ethereum", 100, 4, 0),
			},
			want: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TVLWeightedAPY(tt.pools), 1e-9)
		})
	}
}

func TestStats(t *testing.T) {
	stats := Stats([]model.Pool{
		pool("Ethereum", 1000, 5, 0),
		pool("ethereum", 2000, 10.126, 0),
		pool("Base", 3000, 1, 0),
	})

	assert.Equal(t, 3, stats.TotalPools)
	assert.Equal(t, 5.38, stats.AverageAPY)
	assert.Equal(t, 6000.0, stats.TotalTVL)
	// chain names are compared as stored
	assert.Equal(t, 3, stats.UniqueChains)
	assert.Equal(t, 4.71, stats.WeightedAPY)

	assert.Equal(t, model.PoolStats{}, Stats(nil))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 1.24, RoundTo(1.2351, 2))
	assert.Equal(t, 3.0, RoundTo(2.5, 0))
	assert.Equal(t, -1.5, RoundTo(-1.46, 1))
	assert.Equal(t, 0.0, RoundTo(0, 4))
}
