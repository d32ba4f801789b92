package trading

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"apex-trader/internal/domain"
	"apex-trader/internal/observability"
)

// Flash-loan profit band per execution, as a fraction of the principal.
const (
	flashProfitMin    = 0.002
	flashProfitSpread = 0.003
)

// Book owns the position collection and the aggregate stats. Every mutation
// (accrual ticks, flash-loan executes, withdrawal reconciliation) goes
// through the Book's lock, so a reconciliation and a concurrent tick can
// never interleave into a lost update.
type Book struct {
	mu         sync.Mutex
	strategies []*domain.Strategy
	stats      domain.TradingStats
	rng        *rand.Rand
}

// NewBook creates a book over a generated position population.
func NewBook(strategies []*domain.Strategy, rng *rand.Rand) *Book {
	b := &Book{
		strategies: strategies,
		rng:        rng,
		stats: domain.TradingStats{
			IsActive:  true,
			StartTime: time.Now(),
		},
	}
	b.recomputeLocked()
	return b
}

// Tick advances every active position's PnL by its per-tick rate and
// recomputes the aggregate stats. A tick over zero active positions changes
// nothing but the timestamp bookkeeping.
func (b *Book) Tick() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.stats.IsActive {
		return
	}

	active := 0
	for _, s := range b.strategies {
		if s.IsActive {
			s.PnL += s.Rate
			active++
		}
	}

	b.stats.TotalTrades += int64(active)
	b.stats.LastTradeTime = time.Now()
	b.recomputeLocked()
}

// ApplyWithdrawal deducts the USD equivalent of a withdrawn amount evenly
// across active positions, flooring each position's PnL at zero. Bookkeeping
// only; the real balance is untouched.
func (b *Book) ApplyWithdrawal(amountETH float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	active := b.activeLocked()
	if active == 0 {
		return
	}

	share := amountETH * domain.EthPriceUSD / float64(active)
	for _, s := range b.strategies {
		if s.IsActive {
			s.PnL = math.Max(0, s.PnL-share)
		}
	}
	b.recomputeLocked()
}

// AddGasUsed accounts gas spent by a confirmed withdrawal.
func (b *Book) AddGasUsed(gasETH float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.GasUsedETH += gasETH
}

// FlashLoanResult reports one simulated flash-loan execution.
type FlashLoanResult struct {
	AmountETH  float64
	ProfitUSD  float64
	ProfitETH  float64
	TotalCount int64
}

// ExecuteFlashLoan simulates one profit-generating event: 0.2%-0.5% of the
// flash-loan principal, spread evenly across the position population.
func (b *Book) ExecuteFlashLoan() FlashLoanResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	pct := flashProfitMin + b.rng.Float64()*flashProfitSpread
	profit := domain.FlashLoanAmountETH * pct * domain.EthPriceUSD

	share := profit / float64(len(b.strategies))
	for _, s := range b.strategies {
		s.PnL += share
	}

	b.stats.FlashLoansExecuted++
	b.recomputeLocked()
	observability.RecordFlashLoan()

	return FlashLoanResult{
		AmountETH:  domain.FlashLoanAmountETH,
		ProfitUSD:  profit,
		ProfitETH:  profit / domain.EthPriceUSD,
		TotalCount: b.stats.FlashLoansExecuted,
	}
}

// Stop marks trading inactive; subsequent ticks are no-ops.
func (b *Book) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.IsActive = false
}

// Stats returns a copy of the aggregate stats.
func (b *Book) Stats() domain.TradingStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Snapshot captures the current aggregates for the snapshot store.
func (b *Book) Snapshot() domain.EarningsSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.EarningsSnapshot{
		Timestamp:          time.Now().UTC(),
		TotalEarned:        b.stats.TotalEarned,
		TotalTrades:        b.stats.TotalTrades,
		HourlyRate:         b.stats.HourlyRate,
		FlashLoansExecuted: b.stats.FlashLoansExecuted,
		GasUsedETH:         b.stats.GasUsedETH,
		ActiveStrategies:   b.activeLocked(),
	}
}

// Top returns copies of the first n positions (the population is kept sorted
// by APY descending).
func (b *Book) Top(n int) []domain.Strategy {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.strategies) {
		n = len(b.strategies)
	}
	result := make([]domain.Strategy, n)
	for i := 0; i < n; i++ {
		result[i] = *b.strategies[i]
	}
	return result
}

// Len returns the position population size.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.strategies)
}

// AvgAPY returns the mean effective APY across the population.
func (b *Book) AvgAPY() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.strategies) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range b.strategies {
		sum += s.APY
	}
	return sum / float64(len(b.strategies))
}

// recomputeLocked refreshes the derived aggregates. Caller holds b.mu.
func (b *Book) recomputeLocked() {
	total := 0.0
	for _, s := range b.strategies {
		total += s.PnL
	}
	b.stats.TotalEarned = total

	hours := time.Since(b.stats.StartTime).Hours()
	if hours > 0 {
		b.stats.HourlyRate = total / hours
	}
	observability.SetTotalEarned(total)
}

// activeLocked counts active positions. Caller holds b.mu.
func (b *Book) activeLocked() int {
	n := 0
	for _, s := range b.strategies {
		if s.IsActive {
			n++
		}
	}
	return n
}
