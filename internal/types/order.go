package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/chronoton-lab/chronoton/pkg/errors"
)

type Side string

type OrderKind string

const (
	// SideLong opens or increases long exposure.
	SideLong Side = "LONG"
	// SideShort opens or increases short exposure.
	SideShort Side = "SHORT"
	// SideClose reduces or fully closes the current position, whatever its direction.
	SideClose Side = "CLOSE"
)

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

const (
	OrderReasonStrategy    string = "strategy"
	OrderReasonLiquidation string = "liquidation"
)

// Reason records why an order was produced.
type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// OrderIntent is a normalized order request produced by the external
// strategy layer. The core validates and executes intents, it never
// originates one (liquidation closes excepted, which reuse this type).
type OrderIntent struct {
	ID        string    `yaml:"id" json:"id" csv:"id"`
	Symbol    string    `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side      Side      `yaml:"side" json:"side" csv:"side" validate:"required,oneof=LONG SHORT CLOSE"`
	Kind      OrderKind `yaml:"kind" json:"kind" csv:"kind" validate:"required,oneof=MARKET LIMIT"`
	Quantity  float64   `yaml:"quantity" json:"quantity" csv:"quantity" validate:"gt=0"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp" validate:"required"`
	// LimitPrice is required for limit orders and ignored for market orders.
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price" csv:"limit_price"`
	Reason     Reason                   `yaml:"reason" json:"reason" csv:"reason"`
}

// Validate validates the OrderIntent struct.
func (o *OrderIntent) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidIntent, "invalid order intent", err)
	}

	if o.Kind == OrderKindLimit {
		if o.LimitPrice.IsNone() {
			return errors.Newf(errors.ErrCodeInvalidIntent,
				"limit order for %s has no limit price", o.Symbol)
		}

		if o.LimitPrice.Unwrap() <= 0 {
			return errors.Newf(errors.ErrCodeInvalidPrice,
				"limit price for %s must be positive, got %f", o.Symbol, o.LimitPrice.Unwrap())
		}
	}

	return nil
}
