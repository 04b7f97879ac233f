package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

func validPool(id string) model.RawPool {
	return model.RawPool{
		Chain:   "Ethereum",
		Project: "aave-v3",
		Symbol:  "USDC",
		TVLUSD:  model.Float(1_000_000),
		APY:     model.Float(4.2),
		Pool:    id,
	}
}

func TestFilterInvalid_BasicCriteria(t *testing.T) {
	zeroAPY := validPool("zero-apy")
	zeroAPY.APY = model.Float(0)

	zeroTVL := validPool("zero-tvl")
	zeroTVL.TVLUSD = model.Float(0)

	missingAPY := validPool("missing-apy")
	missingAPY.APY = model.NullFloat{}

	negativeAPY := validPool("negative-apy")
	negativeAPY.APY = model.Float(-1)

	noSymbol := validPool("no-symbol")
	noSymbol.Symbol = ""

	noChain := validPool("no-chain")
	noChain.Chain = ""

	spacedSymbol := validPool("spaced-symbol")
	spacedSymbol.Symbol = "  "

	noProject := validPool("no-project")
	noProject.Project = ""

	tests := []struct {
		name  string
		pools []model.RawPool
		want  []string
	}{
		{
			name:  "all valid",
			pools: []model.RawPool{validPool("a"), validPool("b")},
			want:  []string{"a", "b"},
		},
		{
			name: "invalid records are dropped",
			pools: []model.RawPool{
				validPool("keep"), zeroAPY, zeroTVL, missingAPY, negativeAPY, noSymbol, noChain, noProject,
			},
			want: []string{"keep"},
		},
		{
			name:  "whitespace identity is not empty",
			pools: []model.RawPool{spacedSymbol, noSymbol},
			want:  []string{"spaced-symbol"},
		},
		{
			name:  "empty input",
			pools: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filtered := FilterInvalid(tt.pools)
			ids := make([]string, 0, len(filtered))
			for _, p := range filtered {
				ids = append(ids, p.Pool)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestFilterInvalidWithOptions_CustomSettings(t *testing.T) {
	small := validPool("small")
	small.TVLUSD = model.Float(50_000)

	lowYield := validPool("low-yield")
	lowYield.APY = model.Float(0.5)

	opts := ValidationOptions{
		MinTVL:          100_000,
		MinAPY:          1,
		RequireAPY:      true,
		RequireIdentity: false,
	}

	anonymous := validPool("anonymous")
	anonymous.Symbol = ""

	filtered := FilterInvalidWithOptions([]model.RawPool{small, lowYield, anonymous, validPool("ok")}, opts)
	require.Len(t, filtered, 2)
	assert.Equal(t, "anonymous", filtered[0].Pool)
	assert.Equal(t, "ok", filtered[1].Pool)
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(validPool("x")))

	p := validPool("y")
	p.APY = model.NullFloat{}
	assert.False(t, IsValid(p))
}
