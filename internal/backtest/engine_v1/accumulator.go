package engine

import (
	"time"

	"github.com/chronoton-lab/chronoton/internal/types"
)

// Accumulator folds the per-tick account snapshots and closed trades into
// the equity curve and the end-of-run summary. It keeps running extrema so
// the summary is O(1) to produce at any point.
type Accumulator struct {
	initialCapital float64

	snapshots []types.EquitySnapshot

	peakEquity     float64
	maxDrawdown    float64
	maxDrawdownPct float64

	winning int
	losing  int
	trades  int
}

// NewAccumulator creates an accumulator seeded with the starting capital as
// the initial equity peak.
func NewAccumulator(initialCapital float64) *Accumulator {
	return &Accumulator{
		initialCapital: initialCapital,
		peakEquity:     initialCapital,
	}
}

// Observe records one equity observation and returns the snapshot appended
// to the curve. Drawdown is measured against the running equity peak.
func (a *Accumulator) Observe(timestamp time.Time, account types.AccountInfo) types.EquitySnapshot {
	if account.Equity > a.peakEquity {
		a.peakEquity = account.Equity
	}

	drawdown := a.peakEquity - account.Equity

	drawdownPct := 0.0
	if a.peakEquity > 0 {
		drawdownPct = drawdown / a.peakEquity
	}

	if drawdown > a.maxDrawdown {
		a.maxDrawdown = drawdown
		a.maxDrawdownPct = drawdownPct
	}

	snapshot := types.EquitySnapshot{
		Timestamp:     timestamp,
		Cash:          account.Cash,
		Equity:        account.Equity,
		MarginUsed:    account.MarginUsed,
		UnrealizedPnL: account.UnrealizedPnL,
		RealizedPnL:   account.RealizedPnL,
		Drawdown:      drawdown,
		DrawdownPct:   drawdownPct,
	}

	a.snapshots = append(a.snapshots, snapshot)

	return snapshot
}

// ObserveTrade counts one closed trade. Break-even trades, judged on net
// realized P&L after fees, count as losses.
func (a *Accumulator) ObserveTrade(trade types.ClosedTrade) {
	a.trades++

	if trade.RealizedPnL-trade.Fees > 0 {
		a.winning++
	} else {
		a.losing++
	}
}

// EquityCurve returns the recorded snapshots in observation order.
func (a *Accumulator) EquityCurve() []types.EquitySnapshot {
	return a.snapshots
}

// Summary produces the end-of-run report from the final account state and
// the execution counters.
func (a *Accumulator) Summary(account types.AccountInfo, counters ExecutionCounters) types.Summary {
	totalReturnPct := 0.0
	if a.initialCapital > 0 {
		totalReturnPct = (account.Equity - a.initialCapital) / a.initialCapital
	}

	winRate := 0.0
	if a.trades > 0 {
		winRate = float64(a.winning) / float64(a.trades)
	}

	return types.Summary{
		InitialCapital:        a.initialCapital,
		FinalEquity:           account.Equity,
		TotalReturnPct:        totalReturnPct,
		MaxDrawdown:           a.maxDrawdown,
		MaxDrawdownPct:        a.maxDrawdownPct,
		NumberOfTrades:        a.trades,
		NumberOfWinningTrades: a.winning,
		NumberOfLosingTrades:  a.losing,
		WinRate:               winRate,
		RealizedPnL:           account.RealizedPnL,
		TotalFees:             account.TotalFees,
		TotalFinancing:        account.TotalFinancing,
		ExpiredOrders:         counters.ExpiredOrders,
		RejectedOrders:        counters.RejectedOrders,
		Liquidations:          counters.Liquidations,
	}
}
