package policy

import (
	"time"

	"github.com/chronoton-lab/chronoton/internal/types"
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

const hoursPerYear = 365 * 24

// CFDPolicy implements leveraged margin accounting: margin is a fraction of
// notional, financing accrues on open positions, and positions whose posted
// margin plus unrealized P&L falls below the maintenance requirement are
// liquidated.
type CFDPolicy struct {
	params             Params
	initialMarginRatio float64
}

// NewCFDPolicy validates params and returns a CFD policy.
func NewCFDPolicy(params Params) (*CFDPolicy, error) {
	if params.LeverageCap < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidLeverage,
			"cfd leverage cap must be >= 1, got %f", params.LeverageCap)
	}

	initial := params.InitialMarginRatio
	if initial == 0 {
		initial = 1 / params.LeverageCap
	}

	if initial <= 0 || initial > 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidMarginRatio,
			"initial margin ratio must be in (0, 1], got %f", initial)
	}

	// Posting less margin than the leverage cap allows would exceed the cap.
	if initial*params.LeverageCap < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidMarginRatio,
			"initial margin ratio %f is below 1/leverage cap %f", initial, 1/params.LeverageCap)
	}

	if params.MaintenanceMarginRatio <= 0 || params.MaintenanceMarginRatio >= initial {
		return nil, errors.Newf(errors.ErrCodeInvalidMarginRatio,
			"maintenance margin ratio must be in (0, initial margin ratio %f), got %f",
			initial, params.MaintenanceMarginRatio)
	}

	if params.AnnualFinancingRate < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"financing rate must be non-negative, got %f", params.AnnualFinancingRate)
	}

	if err := params.Fee.validate(); err != nil {
		return nil, err
	}

	if err := params.Slippage.validate(); err != nil {
		return nil, err
	}

	return &CFDPolicy{params: params, initialMarginRatio: initial}, nil
}

// AssetClass implements Policy.
func (p *CFDPolicy) AssetClass() types.AssetClass {
	return types.AssetClassCFD
}

// RequiredMargin implements Policy. For the default initial margin ratio
// this is notional / leverage cap.
func (p *CFDPolicy) RequiredMargin(instrument types.Instrument, quantity, price float64) float64 {
	if quantity < 0 {
		quantity = -quantity
	}

	return quantity * price * instrument.Multiplier * p.initialMarginRatio
}

// FillPrice implements Policy.
func (p *CFDPolicy) FillPrice(instrument types.Instrument, delta float64, tick types.PriceTick) float64 {
	if delta > 0 {
		return p.params.Slippage.Adjust(tick.Ask, delta, 1)
	}

	return p.params.Slippage.Adjust(tick.Bid, delta, -1)
}

// Fee implements Policy.
func (p *CFDPolicy) Fee(notional float64) float64 {
	return p.params.Fee.Calculate(notional)
}

// FinancingCost implements Policy. Financing accrues pro rata on the entry
// notional for the time the position is held.
func (p *CFDPolicy) FinancingCost(position *types.Position, elapsed time.Duration) float64 {
	if position.Quantity == 0 || elapsed <= 0 || p.params.AnnualFinancingRate == 0 {
		return 0
	}

	notional := position.Notional(position.AvgEntryPrice)

	return notional * p.params.AnnualFinancingRate * elapsed.Hours() / hoursPerYear
}

// LiquidationRequired implements Policy. The position must be closed once
// its posted margin plus unrealized P&L no longer covers the maintenance
// requirement on current notional.
func (p *CFDPolicy) LiquidationRequired(position *types.Position, markPrice float64) bool {
	if position.Quantity == 0 {
		return false
	}

	available := position.Margin + position.UnrealizedPnL
	required := p.params.MaintenanceMarginRatio * position.Notional(markPrice)

	return available < required
}
