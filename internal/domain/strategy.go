package domain

// Strategy represents one simulated yield-generating position.
// The population is fixed at startup and never destroyed; PnL is advanced by
// the accrual loop and decremented by withdrawal reconciliation.
type Strategy struct {
	ID       int     `json:"id"`
	Protocol string  `json:"protocol"`
	Name     string  `json:"name"`
	APY      float64 `json:"apy"`              // annualized, after boost and leverage
	Rate     float64 `json:"earningPerSecond"` // PnL added per accrual tick
	PnL      float64 `json:"pnl"`              // running simulated profit, USD
	IsActive bool    `json:"isActive"`
}

// Protocol base APYs, highest first. Effective APY is base * AIBoost * Leverage.
var ProtocolAPY = map[string]float64{
	"uniswap":    45.8,
	"gmx":        32.1,
	"pendle":     28.6,
	"convex":     22.4,
	"eigenlayer": 19.2,
	"balancer":   18.3,
	"yearn":      15.7,
	"curve":      12.5,
	"morpho":     11.9,
	"aave":       8.2,
}

const (
	// AIBoost and Leverage scale protocol base APYs into effective APYs.
	AIBoost  = 2.8
	Leverage = 4.5

	// StrategyCount is the fixed position population created at startup.
	StrategyCount = 450

	// EthPriceUSD is the fixed display-currency conversion rate.
	EthPriceUSD = 3450.0

	// FlashLoanAmountETH is the simulated flash-loan principal per execution.
	FlashLoanAmountETH = 100.0
)
