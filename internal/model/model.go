// Package model defines the core data structures for the defi-yield-agent.
package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NullFloat is a numeric field from the yield provider that may be absent.
// Numbers and numeric strings decode to a valid value; null, missing or
// malformed input decodes to an unset value that reads as 0.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a valid NullFloat.
func Float(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// Value returns the number, or 0 when unset or not finite.
func (n NullFloat) Value() float64 {
	if !n.Valid || !finite(n.Float64) {
		return 0
	}
	return n.Float64
}

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (n *NullFloat) UnmarshalJSON(data []byte) error {
	*n = NullFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}

	// ParseFloat accepts NaN and Inf spellings; those stay unset.
	if v, err := strconv.ParseFloat(raw, 64); err == nil && finite(v) {
		*n = NullFloat{Float64: v, Valid: true}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// MarshalJSON implements json.Marshaler.
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

// Predictions holds the provider's own forecast for a pool.
type Predictions struct {
	PredictedClass   string    `json:"predictedClass,omitempty"`
	BinnedConfidence NullFloat `json:"binnedConfidence"`
}

// RawPool is a single pool record as returned by the yield provider.
// It is transient and never persisted as-is.
type RawPool struct {
	Chain       string       `json:"chain"`
	Project     string       `json:"project"`
	Symbol      string       `json:"symbol"`
	TVLUSD      NullFloat    `json:"tvlUsd"`
	APY         NullFloat    `json:"apy"`
	APYBase     NullFloat    `json:"apyBase"`
	APYReward   NullFloat    `json:"apyReward"`
	Pool        string       `json:"pool"`
	ILRisk      string       `json:"ilRisk,omitempty"`
	Exposure    string       `json:"exposure,omitempty"`
	Predictions *Predictions `json:"predictions,omitempty"`
}

// PredictedClass returns the forecast class or "" when none was reported.
func (r RawPool) PredictedClass() string {
	if r.Predictions == nil {
		return ""
	}
	return r.Predictions.PredictedClass
}

// ILRisk is the qualitative impermanent-loss risk of a pool.
type ILRisk string

// Impermanent-loss risk levels
const (
	ILRiskNone   ILRisk = "None"
	ILRiskLow    ILRisk = "Low"
	ILRiskMedium ILRisk = "Medium"
	ILRiskHigh   ILRisk = "High"
)

// Pool is the normalized, persisted pool entity.
// PoolID is the provider's natural key and identifies a pool across refresh cycles.
type Pool struct {
	ID          string          `json:"id"`
	Chain       string          `json:"chain"`
	Protocol    string          `json:"protocol"`
	Symbol      string          `json:"symbol"`
	TVLUSD      decimal.Decimal `json:"tvl_usd"`
	APY         decimal.Decimal `json:"apy"`
	APYBase     decimal.Decimal `json:"apy_base"`
	APYReward   decimal.Decimal `json:"apy_reward"`
	RiskScore   int             `json:"risk_score"`
	ILRisk      ILRisk          `json:"il_risk"`
	PoolID      string          `json:"pool_id"`
	LastUpdated time.Time       `json:"last_updated"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PoolStats is the dashboard-wide aggregate over all stored pools.
type PoolStats struct {
	TotalPools   int     `json:"totalPools"`
	AverageAPY   float64 `json:"averageAPY"`
	TotalTVL     float64 `json:"totalTVL"`
	UniqueChains int     `json:"uniqueChains"`
	WeightedAPY  float64 `json:"weightedAPY"`
}

// AISettings stores a user's preferred LLM provider and their API keys.
type AISettings struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Provider  string            `json:"provider"`
	APIKeys   map[string]string `json:"api_keys"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of a chat conversation. It is built per request and never stored.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
