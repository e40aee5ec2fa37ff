// Package policy holds the asset-class rule sets that parametrize margin,
// fees, spread/slippage and settlement behavior. Policies are stateless:
// every method is a pure function of its inputs, so the execution engine and
// the ledger stay asset-class-agnostic. Adding a new asset class means
// adding one Policy implementation and registering it.
package policy

import (
	"time"

	"github.com/chronoton-lab/chronoton/internal/types"
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// Policy is the closed set of rules that differ between asset classes.
type Policy interface {
	// AssetClass returns the class this policy applies to.
	AssetClass() types.AssetClass
	// RequiredMargin returns the collateral to post for holding `quantity`
	// units (signed or unsigned, only magnitude matters) at `price`.
	RequiredMargin(instrument types.Instrument, quantity, price float64) float64
	// FillPrice returns the simulated execution price for a signed exposure
	// delta against the given top of book: buys pay the ask, sells receive
	// the bid, both worsened by size-proportional slippage.
	FillPrice(instrument types.Instrument, delta float64, tick types.PriceTick) float64
	// Fee returns the execution fee for a trade of the given notional value.
	Fee(notional float64) float64
	// FinancingCost returns the holding cost accrued over elapsed time.
	// Nonzero only for leveraged classes.
	FinancingCost(position *types.Position, elapsed time.Duration) float64
	// LiquidationRequired reports whether the position must be force-closed
	// given the current mark price.
	LiquidationRequired(position *types.Position, markPrice float64) bool
}

// Params configures a single asset-class policy.
type Params struct {
	// LeverageCap is the maximum notional-to-margin ratio. Must be 1 for
	// share dealing.
	LeverageCap float64 `yaml:"leverage_cap" json:"leverage_cap"`
	// InitialMarginRatio is the fraction of notional posted on entry. Zero
	// means derive it from the leverage cap (1 / LeverageCap).
	InitialMarginRatio float64 `yaml:"initial_margin_ratio" json:"initial_margin_ratio"`
	// MaintenanceMarginRatio is the fraction of current notional below which
	// the position is liquidated. Ignored for share dealing.
	MaintenanceMarginRatio float64 `yaml:"maintenance_margin_ratio" json:"maintenance_margin_ratio"`
	// AnnualFinancingRate is the overnight financing rate, annualized.
	AnnualFinancingRate float64 `yaml:"annual_financing_rate" json:"annual_financing_rate"`
	Fee                 FeeModel      `yaml:"fee" json:"fee"`
	Slippage            SlippageModel `yaml:"slippage" json:"slippage"`
}

// GetPolicy constructs the policy for an asset class from its parameters.
func GetPolicy(class types.AssetClass, params Params) (Policy, error) {
	switch class {
	case types.AssetClassCFD:
		return NewCFDPolicy(params)
	case types.AssetClassShareDealing:
		return NewShareDealingPolicy(params)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown asset class: %s", class)
	}
}

// Registry maps asset classes to their configured policies.
type Registry struct {
	policies map[types.AssetClass]Policy
}

// NewRegistry builds a registry from the given policies.
func NewRegistry(policies ...Policy) *Registry {
	m := make(map[types.AssetClass]Policy, len(policies))
	for _, p := range policies {
		m[p.AssetClass()] = p
	}

	return &Registry{policies: m}
}

// ForClass returns the policy registered for the given asset class.
func (r *Registry) ForClass(class types.AssetClass) (Policy, error) {
	p, ok := r.policies[class]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration,
			"no policy configured for asset class %s", class)
	}

	return p, nil
}
