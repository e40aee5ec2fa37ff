package types

import (
	"time"
)

// EquitySnapshot is one point of the equity curve, emitted once per
// processed tick.
type EquitySnapshot struct {
	Timestamp     time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
	Cash          float64   `yaml:"cash" json:"cash" csv:"cash"`
	Equity        float64   `yaml:"equity" json:"equity" csv:"equity"`
	MarginUsed    float64   `yaml:"margin_used" json:"margin_used" csv:"margin_used"`
	UnrealizedPnL float64   `yaml:"unrealized_pnl" json:"unrealized_pnl" csv:"unrealized_pnl"`
	RealizedPnL   float64   `yaml:"realized_pnl" json:"realized_pnl" csv:"realized_pnl"`
	// Drawdown is peak equity minus current equity, in account currency.
	Drawdown float64 `yaml:"drawdown" json:"drawdown" csv:"drawdown"`
	// DrawdownPct is Drawdown divided by peak equity.
	DrawdownPct float64 `yaml:"drawdown_pct" json:"drawdown_pct" csv:"drawdown_pct"`
}

// Summary aggregates the full run once the tick stream is exhausted.
type Summary struct {
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	FinalEquity    float64 `yaml:"final_equity" json:"final_equity"`
	// TotalReturnPct is (final - initial) / initial.
	TotalReturnPct float64 `yaml:"total_return_pct" json:"total_return_pct"`
	MaxDrawdown    float64 `yaml:"max_drawdown" json:"max_drawdown"`
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	// Count of all closed positions.
	NumberOfTrades int `yaml:"number_of_trades" json:"number_of_trades"`
	// Count of closed positions with positive realized pnl.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades" json:"number_of_winning_trades"`
	// Count of closed positions with negative realized pnl.
	NumberOfLosingTrades int     `yaml:"number_of_losing_trades" json:"number_of_losing_trades"`
	WinRate              float64 `yaml:"win_rate" json:"win_rate"`
	RealizedPnL          float64 `yaml:"realized_pnl" json:"realized_pnl"`
	TotalFees            float64 `yaml:"total_fees" json:"total_fees"`
	TotalFinancing       float64 `yaml:"total_financing" json:"total_financing"`
	// ExpiredOrders counts limit orders that never crossed before the end
	// of the replay. Informational, not an error.
	ExpiredOrders int `yaml:"expired_orders" json:"expired_orders"`
	// RejectedOrders counts intents rejected during the run.
	RejectedOrders int `yaml:"rejected_orders" json:"rejected_orders"`
	// Liquidations counts forced closes.
	Liquidations int `yaml:"liquidations" json:"liquidations"`
}
