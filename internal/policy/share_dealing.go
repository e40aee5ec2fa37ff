package policy

import (
	"time"

	"github.com/chronoton-lab/chronoton/internal/types"
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// ShareDealingPolicy implements full-ownership accounting: the entire
// notional is posted as collateral, there is no borrowing cost, and no price
// movement can force a liquidation.
type ShareDealingPolicy struct {
	params Params
}

// NewShareDealingPolicy validates params and returns a share dealing policy.
func NewShareDealingPolicy(params Params) (*ShareDealingPolicy, error) {
	// Zero means "not set"; anything other than no-leverage is a
	// configuration error, caught before any tick is processed.
	if params.LeverageCap != 0 && params.LeverageCap != 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidLeverage,
			"share dealing cannot be leveraged: leverage cap must be 1, got %f", params.LeverageCap)
	}

	if params.AnnualFinancingRate != 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration,
			"share dealing has no financing rate")
	}

	if err := params.Fee.validate(); err != nil {
		return nil, err
	}

	if err := params.Slippage.validate(); err != nil {
		return nil, err
	}

	return &ShareDealingPolicy{params: params}, nil
}

// AssetClass implements Policy.
func (p *ShareDealingPolicy) AssetClass() types.AssetClass {
	return types.AssetClassShareDealing
}

// RequiredMargin implements Policy. Margin equals full notional.
func (p *ShareDealingPolicy) RequiredMargin(instrument types.Instrument, quantity, price float64) float64 {
	if quantity < 0 {
		quantity = -quantity
	}

	return quantity * price * instrument.Multiplier
}

// FillPrice implements Policy.
func (p *ShareDealingPolicy) FillPrice(instrument types.Instrument, delta float64, tick types.PriceTick) float64 {
	if delta > 0 {
		return p.params.Slippage.Adjust(tick.Ask, delta, 1)
	}

	return p.params.Slippage.Adjust(tick.Bid, delta, -1)
}

// Fee implements Policy.
func (p *ShareDealingPolicy) Fee(notional float64) float64 {
	return p.params.Fee.Calculate(notional)
}

// FinancingCost implements Policy. Full ownership has no borrowing cost.
func (p *ShareDealingPolicy) FinancingCost(position *types.Position, elapsed time.Duration) float64 {
	return 0
}

// LiquidationRequired implements Policy. Never, since there is no leverage.
func (p *ShareDealingPolicy) LiquidationRequired(position *types.Position, markPrice float64) bool {
	return false
}
