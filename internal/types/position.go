package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the current open exposure in one instrument. Owned exclusively
// by the ledger; everything else reads copies.
type Position struct {
	Symbol     string     `yaml:"symbol" json:"symbol" csv:"symbol"`
	AssetClass AssetClass `yaml:"asset_class" json:"asset_class" csv:"asset_class"`
	// Quantity is signed: positive long, negative short.
	Quantity float64 `yaml:"quantity" json:"quantity" csv:"quantity"`
	// AvgEntryPrice is the quantity-weighted blended entry price. There is
	// no lot-level FIFO/LIFO tracking.
	AvgEntryPrice float64 `yaml:"avg_entry_price" json:"avg_entry_price" csv:"avg_entry_price"`
	Multiplier    float64 `yaml:"multiplier" json:"multiplier" csv:"multiplier"`
	// Margin is the collateral currently posted against this position.
	Margin float64 `yaml:"margin" json:"margin" csv:"margin"`
	// UnrealizedPnL is the mark-to-market P&L at the last applied price.
	UnrealizedPnL float64 `yaml:"unrealized_pnl" json:"unrealized_pnl" csv:"unrealized_pnl"`
	// RealizedPnL accumulates P&L realized by reducing fills on this position.
	RealizedPnL float64 `yaml:"realized_pnl" json:"realized_pnl" csv:"realized_pnl"`
	// Fees accumulates execution fees charged against this position.
	Fees          float64   `yaml:"fees" json:"fees" csv:"fees"`
	OpenTimestamp time.Time `yaml:"open_timestamp" json:"open_timestamp" csv:"open_timestamp"`
	// LastFinancingAt is the time financing was last accrued (CFD only).
	LastFinancingAt time.Time `yaml:"last_financing_at" json:"last_financing_at" csv:"last_financing_at"`
	// PendingLiquidation is set once a liquidation request has been emitted
	// so the same tick cannot emit a duplicate.
	PendingLiquidation bool `yaml:"pending_liquidation" json:"pending_liquidation" csv:"pending_liquidation"`
}

// Direction returns +1 for long, -1 for short, 0 for flat.
func (p *Position) Direction() int {
	switch {
	case p.Quantity > 0:
		return 1
	case p.Quantity < 0:
		return -1
	default:
		return 0
	}
}

// Notional returns the absolute contract value of the position at price.
func (p *Position) Notional(price float64) float64 {
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}

	return qty * price * p.Multiplier
}

// UnrealizedAt computes mark-to-market P&L against the blended entry price.
func (p *Position) UnrealizedAt(price float64) float64 {
	priceDec := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(p.AvgEntryPrice))
	pnl, _ := priceDec.
		Mul(decimal.NewFromFloat(p.Quantity)).
		Mul(decimal.NewFromFloat(p.Multiplier)).
		Float64()

	return pnl
}

// ClosedTrade is the realized record folded out of the open set when a
// position's signed quantity returns to zero.
type ClosedTrade struct {
	Symbol         string     `yaml:"symbol" json:"symbol" csv:"symbol"`
	AssetClass     AssetClass `yaml:"asset_class" json:"asset_class" csv:"asset_class"`
	RealizedPnL    float64    `yaml:"realized_pnl" json:"realized_pnl" csv:"realized_pnl"`
	Fees           float64    `yaml:"fees" json:"fees" csv:"fees"`
	OpenTimestamp  time.Time  `yaml:"open_timestamp" json:"open_timestamp" csv:"open_timestamp"`
	CloseTimestamp time.Time  `yaml:"close_timestamp" json:"close_timestamp" csv:"close_timestamp"`
	// Reason records how the position was closed (strategy or liquidation).
	Reason string `yaml:"reason" json:"reason" csv:"reason"`
}
