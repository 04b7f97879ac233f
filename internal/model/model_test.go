package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullFloat_Unmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  NullFloat
	}{
		{name: "number", input: `12.5`, want: NullFloat{Float64: 12.5, Valid: true}},
		{name: "zero", input: `0`, want: NullFloat{Float64: 0, Valid: true}},
		{name: "numeric string", input: `"3.25"`, want: NullFloat{Float64: 3.25, Valid: true}},
		{name: "null", input: `null`, want: NullFloat{}},
		{name: "garbage string", input: `"n/a"`, want: NullFloat{}},
		{name: "boolean", input: `true`, want: NullFloat{}},
		{name: "NaN string", input: `"NaN"`, want: NullFloat{}},
		{name: "Infinity string", input: `"Infinity"`, want: NullFloat{}},
		{name: "negative Inf string", input: `"-Inf"`, want: NullFloat{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got NullFloat
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNullFloat_ValueNonFinite(t *testing.T) {
	tests := []struct {
		name string
		in   NullFloat
	}{
		{name: "NaN", in: Float(math.NaN())},
		{name: "+Inf", in: Float(math.Inf(1))},
		{name: "-Inf", in: Float(math.Inf(-1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Zero(t, tt.in.Value())
		})
	}
}

func TestRawPool_DecodeProviderRecord(t *testing.T) {
	body := `{
		"chain": "Ethereum",
		"project": "lido",
		"symbol": "STETH",
		"tvlUsd": 25000000000,
		"apyBase": 3.1,
		"apyReward": null,
		"apy": 3.1,
		"pool": "747c1d2a-c668-4682-b9f9-296708a3dd90",
		"ilRisk": "no",
		"exposure": "single",
		"predictions": {"predictedClass": "Stable/Up", "binnedConfidence": 2}
	}`

	var raw RawPool
	require.NoError(t, json.Unmarshal([]byte(body), &raw))

	assert.Equal(t, "lido", raw.Project)
	assert.Equal(t, 25000000000.0, raw.TVLUSD.Value())
	assert.True(t, raw.APY.Valid)
	assert.False(t, raw.APYReward.Valid)
	assert.Equal(t, 0.0, raw.APYReward.Value())
	assert.Equal(t, "Stable/Up", raw.PredictedClass())
}

func TestRawPool_MissingAPYIsUnset(t *testing.T) {
	var raw RawPool
	require.NoError(t, json.Unmarshal([]byte(`{"chain":"Base","tvlUsd":"1000"}`), &raw))

	assert.False(t, raw.APY.Valid)
	assert.Equal(t, 1000.0, raw.TVLUSD.Value())
	assert.Equal(t, "", raw.PredictedClass())
}
