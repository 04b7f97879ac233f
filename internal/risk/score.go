// Package risk implements the heuristic pool risk score.
// Higher scores mean safer pools.
package risk

import (
	"strings"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

// Score bounds
const (
	MinScore  = 0
	MaxScore  = 100
	baseScore = 50
)

// Assessment is the output of the scorer for one pool.
type Assessment struct {
	Score  int
	ILRisk model.ILRisk
}

// Assess scores a raw pool and resolves its impermanent-loss label.
func Assess(p model.RawPool) Assessment {
	return Assessment{
		Score:  Score(p),
		ILRisk: ILLabel(p),
	}
}

// Score returns an additive risk score in [0,100]. Terms may push the running
// total outside the range; only the final sum is clamped.
func Score(p model.RawPool) int {
	score := baseScore
	score += tvlBonus(p.TVLUSD.Value())
	score += apyBonus(p.APY.Value())
	score += ilRiskBonus(normalize(p.ILRisk))

	exposure := normalize(p.Exposure)
	switch {
	case strings.Contains(exposure, "stable"):
		score += 10
	case strings.Contains(exposure, "single"):
		score += 5
	}

	if p.PredictedClass() == "stable" {
		score += 5
	}

	return clamp(score)
}

// ILLabel resolves the impermanent-loss label. A stable exposure overrides
// an explicit low/medium/high label.
func ILLabel(p model.RawPool) model.ILRisk {
	il := normalize(p.ILRisk)
	exposure := normalize(p.Exposure)

	switch {
	case il == "no" || il == "none" || strings.Contains(exposure, "stable"):
		return model.ILRiskNone
	case il == "low":
		return model.ILRiskLow
	case il == "medium":
		return model.ILRiskMedium
	case il == "high":
		return model.ILRiskHigh
	case strings.Contains(exposure, "single"):
		return model.ILRiskNone
	default:
		return model.ILRiskLow
	}
}

func tvlBonus(tvl float64) int {
	switch {
	case tvl > 100_000_000:
		return 15
	case tvl > 10_000_000:
		return 10
	case tvl > 1_000_000:
		return 5
	default:
		return 0
	}
}

// apyBonus penalizes extreme yields rather than merely withholding the bonus.
func apyBonus(apy float64) int {
	switch {
	case apy < 20:
		return 15
	case apy < 50:
		return 10
	case apy < 100:
		return 5
	default:
		return -10
	}
}

func ilRiskBonus(il string) int {
	switch il {
	case "no", "none":
		return 15
	case "low":
		return 10
	case "medium":
		return 5
	default:
		return 0
	}
}

func normalize(s string) string {
	return strings.ToLower(s)
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
