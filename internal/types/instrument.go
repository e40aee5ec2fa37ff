package types

import (
	"github.com/go-playground/validator/v10"

	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// AssetClass selects the settlement model applied to an instrument.
type AssetClass string

const (
	// AssetClassCFD: leveraged derivative contract settled on price
	// difference, margin posted against notional, may be force-liquidated.
	AssetClassCFD AssetClass = "CFD"
	// AssetClassShareDealing: full-ownership equity purchase, margin equals
	// full notional, never force-liquidated.
	AssetClassShareDealing AssetClass = "SHARE_DEALING"
)

// Instrument describes a tradeable symbol. Immutable after configuration.
type Instrument struct {
	Symbol     string     `yaml:"symbol" json:"symbol" validate:"required"`
	AssetClass AssetClass `yaml:"asset_class" json:"asset_class" validate:"required,oneof=CFD SHARE_DEALING"`
	// TickSize is the minimum price increment.
	TickSize float64 `yaml:"tick_size" json:"tick_size" validate:"gt=0"`
	// Multiplier is the contract multiplier: 1 for shares, configurable for CFDs.
	Multiplier float64 `yaml:"multiplier" json:"multiplier" validate:"gt=0"`
}

// Validate validates the Instrument struct.
func (i *Instrument) Validate() error {
	validate := validator.New()
	if err := validate.Struct(i); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInstrument, "invalid instrument", err)
	}

	if i.AssetClass == AssetClassShareDealing && i.Multiplier != 1 {
		return errors.Newf(errors.ErrCodeInvalidInstrument,
			"share dealing instrument %s must have multiplier 1, got %f", i.Symbol, i.Multiplier)
	}

	return nil
}
