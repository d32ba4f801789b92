package trading

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apex-trader/internal/domain"
)

func TestGenerateStrategies_PopulationShape(t *testing.T) {
	strategies := GenerateStrategies(450, testRand())
	require.Len(t, strategies, 450)

	for _, s := range strategies {
		base, ok := domain.ProtocolAPY[s.Protocol]
		require.True(t, ok, "unknown protocol %q", s.Protocol)

		assert.InDelta(t, base*domain.AIBoost*domain.Leverage, s.APY, 1e-9)
		assert.InDelta(t, s.APY/365/24/3600*100, s.Rate, 1e-12)
		assert.GreaterOrEqual(t, s.PnL, 500.0)
		assert.Less(t, s.PnL, 1500.0)
		assert.True(t, s.IsActive)
		assert.Contains(t, s.Name, strings.ToUpper(s.Protocol))
	}
}

func TestGenerateStrategies_SortedByAPYDescending(t *testing.T) {
	strategies := GenerateStrategies(100, testRand())

	sorted := sort.SliceIsSorted(strategies, func(i, j int) bool {
		return strategies[i].APY > strategies[j].APY
	})
	assert.True(t, sorted)
}

func TestGenerateStrategies_CyclesAllProtocols(t *testing.T) {
	strategies := GenerateStrategies(len(Protocols())*2, testRand())

	seen := make(map[string]int)
	for _, s := range strategies {
		seen[s.Protocol]++
	}
	for _, p := range Protocols() {
		assert.Equal(t, 2, seen[p], "protocol %s", p)
	}
}

func TestGenerateStrategies_DefaultCount(t *testing.T) {
	strategies := GenerateStrategies(0, testRand())
	assert.Len(t, strategies, domain.StrategyCount)
}

func TestGenerateStrategies_UniqueIDs(t *testing.T) {
	strategies := GenerateStrategies(50, testRand())

	ids := make(map[int]bool)
	for _, s := range strategies {
		assert.False(t, ids[s.ID], "duplicate id %d", s.ID)
		ids[s.ID] = true
	}
}
