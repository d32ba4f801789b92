package trading

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"apex-trader/internal/domain"
)

// DefaultStrategyCount is the population size used when none is configured.
const DefaultStrategyCount = domain.StrategyCount

// Initial PnL range for freshly generated positions, USD.
const (
	initialPnLBase   = 500.0
	initialPnLSpread = 1000.0
)

// protocolOrder fixes iteration order over domain.ProtocolAPY so generation
// is reproducible for a given rand source.
var protocolOrder = []string{
	"uniswap", "gmx", "pendle", "convex", "eigenlayer",
	"balancer", "yearn", "curve", "morpho", "aave",
}

// Protocols returns the protocol cycle used by generation.
func Protocols() []string {
	out := make([]string, len(protocolOrder))
	copy(out, protocolOrder)
	return out
}

// GenerateStrategies creates the fixed position population: count positions
// cycling through the protocol table, effective APY = base * AIBoost *
// Leverage, sorted by APY descending so the highest earners come first.
func GenerateStrategies(count int, rng *rand.Rand) []*domain.Strategy {
	if count <= 0 {
		count = domain.StrategyCount
	}

	strategies := make([]*domain.Strategy, 0, count)
	for i := 0; i < count; i++ {
		protocol := protocolOrder[i%len(protocolOrder)]
		apy := domain.ProtocolAPY[protocol] * domain.AIBoost * domain.Leverage

		strategies = append(strategies, &domain.Strategy{
			ID:       i + 1,
			Protocol: protocol,
			Name:     fmt.Sprintf("%s Strategy #%d", strings.ToUpper(protocol), i+1),
			APY:      apy,
			Rate:     apy / 365 / 24 / 3600 * 100,
			PnL:      initialPnLBase + rng.Float64()*initialPnLSpread,
			IsActive: true,
		})
	}

	sort.SliceStable(strategies, func(i, j int) bool {
		return strategies[i].APY > strategies[j].APY
	})
	return strategies
}
