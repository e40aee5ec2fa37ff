package policy

import (
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// FeeModel is a fixed-plus-proportional commission with a per-order minimum.
// A zero value charges nothing.
type FeeModel struct {
	// Fixed is the flat fee charged per order.
	Fixed float64 `yaml:"fixed" json:"fixed"`
	// Rate is the proportional fee on the order notional.
	Rate float64 `yaml:"rate" json:"rate"`
	// Minimum is the floor applied to any nonzero fee.
	Minimum float64 `yaml:"minimum" json:"minimum"`
}

// Calculate returns the fee for an order of the given notional value.
func (f FeeModel) Calculate(notional float64) float64 {
	if notional < 0 {
		notional = -notional
	}

	fee := f.Fixed + f.Rate*notional
	if fee > 0 && fee < f.Minimum {
		return f.Minimum
	}

	return fee
}

func (f FeeModel) validate() error {
	if f.Fixed < 0 || f.Minimum < 0 {
		return errors.New(errors.ErrCodeInvalidFeeModel, "fee amounts must be non-negative")
	}

	if f.Rate < 0 || f.Rate >= 1 {
		return errors.Newf(errors.ErrCodeInvalidFeeModel, "fee rate must be in [0, 1), got %f", f.Rate)
	}

	return nil
}

// SlippageModel worsens the fill price in proportion to how far the order
// size exceeds the simulated top-of-book liquidity.
type SlippageModel struct {
	// LiquidityThreshold is the order size that fills with no impact. Zero
	// disables slippage entirely.
	LiquidityThreshold float64 `yaml:"liquidity_threshold" json:"liquidity_threshold"`
	// ImpactRate is the fractional price impact per threshold of excess size.
	ImpactRate float64 `yaml:"impact_rate" json:"impact_rate"`
}

// Adjust worsens price for the order: direction +1 pushes up (buys),
// -1 pushes down (sells).
func (s SlippageModel) Adjust(price, quantity float64, direction int) float64 {
	if s.LiquidityThreshold <= 0 || s.ImpactRate <= 0 {
		return price
	}

	if quantity < 0 {
		quantity = -quantity
	}

	excess := quantity - s.LiquidityThreshold
	if excess <= 0 {
		return price
	}

	impact := s.ImpactRate * excess / s.LiquidityThreshold

	return price * (1 + float64(direction)*impact)
}

func (s SlippageModel) validate() error {
	if s.LiquidityThreshold < 0 || s.ImpactRate < 0 {
		return errors.New(errors.ErrCodeInvalidSlippageModel, "slippage parameters must be non-negative")
	}

	return nil
}
