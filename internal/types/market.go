package types

import (
	"math"
	"time"

	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// PriceTick is a single top-of-book observation for one instrument.
// Ticks for a single instrument are strictly increasing in timestamp.
type PriceTick struct {
	Symbol    string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
	Bid       float64   `yaml:"bid" json:"bid" csv:"bid"`
	Ask       float64   `yaml:"ask" json:"ask" csv:"ask"`
}

// Mid returns the mid price of the tick.
func (t PriceTick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Validate rejects ticks with missing symbols, non-finite or non-positive
// prices, and crossed books.
func (t PriceTick) Validate() error {
	if t.Symbol == "" {
		return errors.New(errors.ErrCodeInvalidTick, "tick has empty symbol")
	}

	if t.Timestamp.IsZero() {
		return errors.Newf(errors.ErrCodeInvalidTick, "tick for %s has zero timestamp", t.Symbol)
	}

	for _, p := range []float64{t.Bid, t.Ask} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return errors.Newf(errors.ErrCodeInvalidTick, "tick for %s has invalid price %f", t.Symbol, p)
		}
	}

	if t.Ask < t.Bid {
		return errors.Newf(errors.ErrCodeInvalidTick,
			"tick for %s is crossed: bid %f > ask %f", t.Symbol, t.Bid, t.Ask)
	}

	return nil
}
