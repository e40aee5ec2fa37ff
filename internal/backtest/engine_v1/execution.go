package engine

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chronoton-lab/chronoton/internal/logger"
	"github.com/chronoton-lab/chronoton/internal/policy"
	"github.com/chronoton-lab/chronoton/internal/types"
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// ExecutionCounters aggregates the non-fatal outcomes of a run.
type ExecutionCounters struct {
	RejectedOrders int
	ExpiredOrders  int
	Liquidations   int
}

// ExecutionEngine turns order intents into fills against the most recent
// top-of-book and maintains the resting limit order queue. All fills,
// including liquidation closes, flow through the same path so the ledger
// sees a single consistent stream.
type ExecutionEngine struct {
	instruments map[string]types.Instrument
	policies    *policy.Registry
	ledger      *Ledger
	log         *logger.Logger

	lastTicks map[string]types.PriceTick
	pending   []types.OrderIntent
	counters  ExecutionCounters
	orderSeq  uint64
}

// nextOrderID derives an order ID from the run-local sequence number, so
// identical replays assign identical IDs to generated orders.
func (e *ExecutionEngine) nextOrderID(symbol string) string {
	e.orderSeq++
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%d", symbol, e.orderSeq))).String()
}

// NewExecutionEngine creates an engine bound to a ledger and instrument
// universe.
func NewExecutionEngine(instruments []types.Instrument, policies *policy.Registry, ledger *Ledger, log *logger.Logger) *ExecutionEngine {
	bySymbol := make(map[string]types.Instrument, len(instruments))
	for _, instrument := range instruments {
		bySymbol[instrument.Symbol] = instrument
	}

	return &ExecutionEngine{
		instruments: bySymbol,
		policies:    policies,
		ledger:      ledger,
		log:         log,
		lastTicks:   make(map[string]types.PriceTick),
	}
}

// OnTick advances the engine by one price tick: resting limit orders that
// now cross are filled in arrival order, the ledger is marked to the new
// prices, and any position the asset-class policy flags is force-closed
// through the normal fill path. Returns the fills produced by this tick.
func (e *ExecutionEngine) OnTick(tick types.PriceTick) ([]types.Fill, error) {
	if err := tick.Validate(); err != nil {
		return nil, err
	}

	if last, ok := e.lastTicks[tick.Symbol]; ok && tick.Timestamp.Before(last.Timestamp) {
		return nil, errors.Newf(errors.ErrCodeNonMonotonicTick,
			"tick for %s at %s is before previous tick at %s",
			tick.Symbol, tick.Timestamp, last.Timestamp)
	}

	e.lastTicks[tick.Symbol] = tick

	fills, err := e.fillCrossedLimits(tick)
	if err != nil {
		return nil, err
	}

	if err := e.ledger.ApplyPriceUpdate(tick); err != nil {
		return nil, err
	}

	liquidationFills, err := e.sweepLiquidations(tick)
	if err != nil {
		return nil, err
	}

	fills = append(fills, liquidationFills...)

	if err := e.ledger.VerifyEquity(); err != nil {
		return fills, err
	}

	return fills, nil
}

// Submit routes one intent: market orders execute immediately against the
// latest tick, limit orders fill at once if they already cross and rest in
// the pending queue otherwise. A nil fill with a nil error means the order
// was rejected or is resting.
func (e *ExecutionEngine) Submit(intent types.OrderIntent) (*types.Fill, error) {
	if err := intent.Validate(); err != nil {
		e.reject(intent, err.Error())
		return nil, nil
	}

	if intent.ID == "" {
		intent.ID = e.nextOrderID(intent.Symbol)
	}

	if _, ok := e.instruments[intent.Symbol]; !ok {
		e.reject(intent, "unknown instrument")
		return nil, nil
	}

	tick, ok := e.lastTicks[intent.Symbol]
	if !ok {
		e.reject(intent, "no market data seen yet")
		return nil, nil
	}

	if intent.Kind == types.OrderKindLimit && !e.limitCrosses(intent, tick) {
		e.pending = append(e.pending, intent)
		return nil, nil
	}

	return e.execute(intent, tick)
}

// PendingOrders returns a copy of the resting limit queue.
func (e *ExecutionEngine) PendingOrders() []types.OrderIntent {
	pending := make([]types.OrderIntent, len(e.pending))
	copy(pending, e.pending)

	return pending
}

// ExpirePending cancels every resting limit order. Called once at the end
// of the replay; expired orders are informational, not errors.
func (e *ExecutionEngine) ExpirePending() int {
	expired := len(e.pending)
	for _, intent := range e.pending {
		e.log.Info("Limit order expired unfilled",
			zap.String("order_id", intent.ID),
			zap.String("symbol", intent.Symbol),
		)
	}

	e.pending = nil
	e.counters.ExpiredOrders += expired

	return expired
}

// ExpireIntent counts an intent that never became eligible for submission,
// for example one dated after the final tick of the replay.
func (e *ExecutionEngine) ExpireIntent(intent types.OrderIntent) {
	e.counters.ExpiredOrders++
	e.log.Info("Intent expired before any eligible tick",
		zap.String("order_id", intent.ID),
		zap.String("symbol", intent.Symbol),
	)
}

// Counters returns the accumulated rejection, expiry and liquidation counts.
func (e *ExecutionEngine) Counters() ExecutionCounters {
	return e.counters
}

// LastTick returns the most recent tick seen for symbol.
func (e *ExecutionEngine) LastTick(symbol string) (types.PriceTick, bool) {
	tick, ok := e.lastTicks[symbol]
	return tick, ok
}

// execute fills one intent at the given tick, applies it to the ledger and
// returns the fill. Rejections (unaffordable entry, close with nothing
// open) are counted and return a nil fill.
func (e *ExecutionEngine) execute(intent types.OrderIntent, tick types.PriceTick) (*types.Fill, error) {
	instrument := e.instruments[intent.Symbol]

	assetPolicy, err := e.policies.ForClass(instrument.AssetClass)
	if err != nil {
		return nil, err
	}

	delta, ok := e.signedDelta(intent)
	if !ok {
		e.reject(intent, "no open position to close")
		return nil, nil
	}

	price := e.fillPrice(intent, assetPolicy, instrument, delta, tick)
	notional := math.Abs(delta) * price * instrument.Multiplier
	fee := assetPolicy.Fee(notional)

	if increasesExposure(intent) {
		required := assetPolicy.RequiredMargin(instrument, delta, price)

		position, open := e.ledger.Position(intent.Symbol)
		if open {
			// The whole position reprices to the fill price, so the margin
			// call is the new total requirement minus what is already posted.
			required = assetPolicy.RequiredMargin(instrument, position.Quantity+delta, price) - position.Margin
		}

		if required+fee > e.ledger.Cash() {
			e.reject(intent, "insufficient cash for margin and fees")
			return nil, nil
		}
	}

	fill := types.Fill{
		OrderID:   intent.ID,
		Symbol:    intent.Symbol,
		Side:      intent.Side,
		Quantity:  delta,
		Price:     price,
		Fee:       fee,
		Timestamp: tick.Timestamp,
		Reason:    intent.Reason,
	}

	if _, err := e.ledger.ApplyFill(fill); err != nil {
		return nil, err
	}

	e.log.Debug("Order filled",
		zap.String("order_id", fill.OrderID),
		zap.String("symbol", fill.Symbol),
		zap.String("side", string(fill.Side)),
		zap.Float64("quantity", fill.Quantity),
		zap.Float64("price", fill.Price),
		zap.Float64("fee", fill.Fee),
	)

	return &fill, nil
}

// fillCrossedLimits fills every resting limit order on the tick's symbol
// whose price condition the new top of book satisfies, in arrival order.
func (e *ExecutionEngine) fillCrossedLimits(tick types.PriceTick) ([]types.Fill, error) {
	var fills []types.Fill

	remaining := e.pending[:0]

	for _, intent := range e.pending {
		if intent.Symbol != tick.Symbol || !e.limitCrosses(intent, tick) {
			remaining = append(remaining, intent)
			continue
		}

		fill, err := e.execute(intent, tick)
		if err != nil {
			return nil, err
		}

		if fill != nil {
			fills = append(fills, *fill)
		}
	}

	e.pending = remaining

	return fills, nil
}

// sweepLiquidations force-closes the position on the tick's symbol while
// the policy's predicate holds. The close is a synthetic market intent so
// it takes the identical fill path as strategy orders.
func (e *ExecutionEngine) sweepLiquidations(tick types.PriceTick) ([]types.Fill, error) {
	var fills []types.Fill

	for {
		position, open := e.ledger.Position(tick.Symbol)
		if !open {
			return fills, nil
		}

		mark := tick.Bid
		if position.Quantity < 0 {
			mark = tick.Ask
		}

		required, err := e.ledger.CheckLiquidation(tick.Symbol, mark)
		if err != nil {
			return nil, err
		}

		if !required {
			return fills, nil
		}

		e.counters.Liquidations++

		intent := types.OrderIntent{
			ID:        e.nextOrderID(tick.Symbol),
			Symbol:    tick.Symbol,
			Side:      types.SideClose,
			Kind:      types.OrderKindMarket,
			Quantity:  math.Abs(position.Quantity),
			Timestamp: tick.Timestamp,
			Reason: types.Reason{
				Reason:  types.OrderReasonLiquidation,
				Message: "maintenance margin breached",
			},
		}

		fill, err := e.execute(intent, tick)
		if err != nil {
			return nil, err
		}

		if fill != nil {
			fills = append(fills, *fill)
		}
	}
}

// signedDelta maps an intent's side and quantity to the signed position
// delta it produces. Closes flip the sign of the open position and clamp
// to its size; the second return is false when there is nothing to close.
func (e *ExecutionEngine) signedDelta(intent types.OrderIntent) (float64, bool) {
	switch intent.Side {
	case types.SideLong:
		return intent.Quantity, true
	case types.SideShort:
		return -intent.Quantity, true
	default:
		position, open := e.ledger.Position(intent.Symbol)
		if !open {
			return 0, false
		}

		closable := math.Min(intent.Quantity, math.Abs(position.Quantity))

		return -float64(position.Direction()) * closable, true
	}
}

func (e *ExecutionEngine) fillPrice(intent types.OrderIntent, assetPolicy policy.Policy, instrument types.Instrument, delta float64, tick types.PriceTick) float64 {
	// Limit orders fill at their limit price; the price improvement of a
	// deeper cross is forfeited, matching a conservative simulation.
	if intent.Kind == types.OrderKindLimit {
		return intent.LimitPrice.Unwrap()
	}

	return assetPolicy.FillPrice(instrument, delta, tick)
}

func (e *ExecutionEngine) reject(intent types.OrderIntent, reason string) {
	e.counters.RejectedOrders++
	e.log.Warn("Order rejected",
		zap.String("order_id", intent.ID),
		zap.String("symbol", intent.Symbol),
		zap.String("side", string(intent.Side)),
		zap.String("reason", reason),
	)
}

// limitCrosses reports whether a limit intent is executable against the
// given top of book. Buys cross when the ask is at or below the limit,
// sells when the bid is at or above it. A close of a short position is a
// buy, so closes take their direction from the open position.
func (e *ExecutionEngine) limitCrosses(intent types.OrderIntent, tick types.PriceTick) bool {
	if intent.Kind != types.OrderKindLimit {
		return true
	}

	limit := intent.LimitPrice.Unwrap()

	buying := intent.Side == types.SideLong
	if intent.Side == types.SideClose {
		position, open := e.ledger.Position(intent.Symbol)
		buying = open && position.Quantity < 0
	}

	if buying {
		return tick.Ask <= limit
	}

	return tick.Bid >= limit
}

// increasesExposure reports whether the intent opens or adds to a position.
func increasesExposure(intent types.OrderIntent) bool {
	return intent.Side == types.SideLong || intent.Side == types.SideShort
}
