// Package datasource loads price ticks and order intents for replay. Both
// sources expose a yield-based iterator so the replay loop can stream
// arbitrarily large inputs without holding them in memory.
package datasource

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/chronoton-lab/chronoton/internal/types"
)

// TickSource streams the price tick history for a run.
type TickSource interface {
	// Initialize loads tick data from the given path. CSV and Parquet files
	// are both accepted.
	Initialize(path string) error
	// ReadAll yields every tick in timestamp order, restricted to the
	// optional [start, end] window.
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.PriceTick, error) bool)
	// Count returns the number of ticks inside the optional window.
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// Close releases any resources held by the source.
	Close() error
}

// IntentSource streams the strategy's order intents in timestamp order.
type IntentSource interface {
	// ReadAll yields every intent in timestamp order.
	ReadAll() func(yield func(types.OrderIntent, error) bool)
	// Close releases any resources held by the source.
	Close() error
}
