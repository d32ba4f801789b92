package domain

import "time"

// TradingStats is the process-wide aggregate over the Strategy population,
// recomputed on every accrual tick.
type TradingStats struct {
	IsActive           bool
	TotalEarned        float64 // sum of all position PnL, USD
	TotalTrades        int64
	StartTime          time.Time
	LastTradeTime      time.Time
	HourlyRate         float64 // TotalEarned / hours elapsed since StartTime
	FlashLoansExecuted int64
	GasUsedETH         float64 // cumulative gas spent on confirmed withdrawals
}

// EarningsSnapshot is a point-in-time capture of the aggregate stats,
// written to the snapshot store on a coarse interval.
type EarningsSnapshot struct {
	Timestamp          time.Time
	TotalEarned        float64
	TotalTrades        int64
	HourlyRate         float64
	FlashLoansExecuted int64
	GasUsedETH         float64
	ActiveStrategies   int
}
