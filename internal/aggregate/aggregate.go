// Package aggregate computes summary figures over stored pools.
package aggregate

import (
	"math"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

// Summary is the compact figure set attached to agent answers
type Summary struct {
	BestAPY      float64 `json:"best_apy"`
	AvgRiskScore float64 `json:"avg_risk_score"`
}

// Summarize returns the best APY and mean risk score of pools. Both are 0 for an empty slice.
func Summarize(pools []model.Pool) Summary {
	if len(pools) == 0 {
		return Summary{}
	}

	best := math.Inf(-1)
	riskTotal := 0
	for _, p := range pools {
		if apy := p.APY.InexactFloat64(); apy > best {
			best = apy
		}
		riskTotal += p.RiskScore
	}

	return Summary{
		BestAPY:      best,
		AvgRiskScore: float64(riskTotal) / float64(len(pools)),
	}
}

// Stats reduces pools into dashboard-wide figures. AverageAPY is rounded to 2 places.
func Stats(pools []model.Pool) model.PoolStats {
	if len(pools) == 0 {
		return model.PoolStats{}
	}

	var apyTotal, tvlTotal float64
	chains := make(map[string]struct{})
	for _, p := range pools {
		apyTotal += p.APY.InexactFloat64()
		tvlTotal += p.TVLUSD.InexactFloat64()
		chains[p.Chain] = struct{}{}
	}

	return model.PoolStats{
		TotalPools:   len(pools),
		AverageAPY:   RoundTo(apyTotal/float64(len(pools)), 2),
		TotalTVL:     tvlTotal,
		UniqueChains: len(chains),
		WeightedAPY:  RoundTo(TVLWeightedAPY(pools), 2),
	}
}

// TVLWeightedAPY returns the TVL-weighted mean APY. Pools without positive TVL
// or with negative APY are ignored; the result is 0 when nothing qualifies.
func TVLWeightedAPY(pools []model.Pool) float64 {
	var totalTVL, weightedAPY float64
	for _, p := range pools {
		tvl := p.TVLUSD.InexactFloat64()
		apy := p.APY.InexactFloat64()
		if tvl > 0 && apy >= 0 {
			totalTVL += tvl
			weightedAPY += apy * tvl
		}
	}

	if totalTVL <= 0 || math.IsNaN(weightedAPY) || math.IsInf(weightedAPY, 0) {
		return 0
	}
	return weightedAPY / totalTVL
}

// RoundTo rounds value half away from zero to the given decimal places
func RoundTo(value float64, places int) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	pow := math.Pow(10, float64(places))
	return math.Round(value*pow) / pow
}
