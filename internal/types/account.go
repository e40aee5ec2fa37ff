package types

// AccountInfo is a read-only snapshot of the account state. The invariant
// Cash + MarginUsed + UnrealizedPnL == Equity holds after every mutation.
type AccountInfo struct {
	// Cash is the free cash balance (excluding posted margin and unrealized P&L).
	Cash float64 `json:"cash" yaml:"cash"`
	// Equity is the total account value (cash + margin used + unrealized P&L).
	Equity float64 `json:"equity" yaml:"equity"`
	// MarginUsed is the collateral posted across all open positions.
	MarginUsed float64 `json:"margin_used" yaml:"margin_used"`
	// RealizedPnL is the total realized profit/loss from closed and reduced positions.
	RealizedPnL float64 `json:"realized_pnl" yaml:"realized_pnl"`
	// UnrealizedPnL is the total unrealized profit/loss from open positions.
	UnrealizedPnL float64 `json:"unrealized_pnl" yaml:"unrealized_pnl"`
	// TotalFees is the total execution fees paid.
	TotalFees float64 `json:"total_fees" yaml:"total_fees"`
	// TotalFinancing is the total overnight financing paid (CFD only).
	TotalFinancing float64 `json:"total_financing" yaml:"total_financing"`
}
