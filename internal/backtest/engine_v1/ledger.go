package engine

import (
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chronoton-lab/chronoton/internal/logger"
	"github.com/chronoton-lab/chronoton/internal/policy"
	"github.com/chronoton-lab/chronoton/internal/types"
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// Quantities and money amounts below this are treated as zero.
const epsilon = 1e-9

// equityTolerance bounds the accepted float drift when reconciling the
// account equity two independent ways.
const equityTolerance = 1e-6

// Ledger owns the mutable book of open positions and the cash balance for
// one backtest run. Fills and price updates mutate it; everything else reads
// snapshots.
type Ledger struct {
	instruments map[string]types.Instrument
	policies    *policy.Registry
	log         *logger.Logger

	cash           float64
	initialCash    float64
	realized       float64
	totalFees      float64
	totalFinancing float64
	positions      map[string]*types.Position
	closed         []types.ClosedTrade
}

// NewLedger creates a ledger holding initialCash against the given
// instrument universe.
func NewLedger(instruments []types.Instrument, policies *policy.Registry, initialCash float64, log *logger.Logger) *Ledger {
	bySymbol := make(map[string]types.Instrument, len(instruments))
	for _, instrument := range instruments {
		bySymbol[instrument.Symbol] = instrument
	}

	return &Ledger{
		instruments: bySymbol,
		policies:    policies,
		log:         log,
		cash:        initialCash,
		initialCash: initialCash,
		positions:   make(map[string]*types.Position),
	}
}

// ApplyFill mutates the position and cash for one fill. Increasing fills
// reprice the blended entry; reducing fills realize P&L immediately at the
// fill price. When the signed quantity returns to zero the position is
// folded into the closed history and returned.
func (l *Ledger) ApplyFill(fill types.Fill) (*types.ClosedTrade, error) {
	instrument, ok := l.instruments[fill.Symbol]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownInstrument, "fill for unknown instrument %s", fill.Symbol)
	}

	assetPolicy, err := l.policies.ForClass(instrument.AssetClass)
	if err != nil {
		return nil, err
	}

	position, ok := l.positions[fill.Symbol]
	if !ok {
		position = &types.Position{
			Symbol:          fill.Symbol,
			AssetClass:      instrument.AssetClass,
			Multiplier:      instrument.Multiplier,
			OpenTimestamp:   fill.Timestamp,
			LastFinancingAt: fill.Timestamp,
		}
		l.positions[fill.Symbol] = position
	}

	delta := fill.Quantity
	realizedTranche := 0.0

	if position.Quantity == 0 || sameSign(position.Quantity, delta) {
		// Increasing exposure: quantity-weighted blended entry price.
		position.AvgEntryPrice = blendedEntry(position.Quantity, position.AvgEntryPrice, delta, fill.Price)
		position.Quantity += delta
	} else {
		// Reducing or reversing: the reduced portion realizes at the fill
		// price against the blended basis.
		closable := math.Min(math.Abs(delta), math.Abs(position.Quantity))
		realizedTranche = realizePnL(fill.Price, position.AvgEntryPrice, closable,
			float64(position.Direction()), position.Multiplier)

		position.RealizedPnL += realizedTranche
		l.realized += realizedTranche
		l.cash += realizedTranche

		remainder := math.Abs(delta) - closable
		position.Quantity += delta

		if remainder > epsilon {
			// Reversal: the leftover opens a fresh position at the fill price.
			position.AvgEntryPrice = fill.Price
			position.OpenTimestamp = fill.Timestamp
		}
	}

	if math.Abs(position.Quantity) < epsilon {
		position.Quantity = 0
	}

	// Reprice margin and move the delta between cash and collateral.
	newMargin := 0.0
	if position.Quantity != 0 {
		newMargin = assetPolicy.RequiredMargin(instrument, position.Quantity, fill.Price)
	}

	l.cash -= newMargin - position.Margin
	position.Margin = newMargin

	l.cash -= fill.Fee
	l.totalFees += fill.Fee
	position.Fees += fill.Fee

	position.UnrealizedPnL = position.UnrealizedAt(fill.Price)
	position.PendingLiquidation = false

	var closedTrade *types.ClosedTrade

	if position.Quantity == 0 {
		trade := types.ClosedTrade{
			Symbol:         position.Symbol,
			AssetClass:     position.AssetClass,
			RealizedPnL:    position.RealizedPnL,
			Fees:           position.Fees,
			OpenTimestamp:  position.OpenTimestamp,
			CloseTimestamp: fill.Timestamp,
			Reason:         fill.Reason.Reason,
		}
		l.closed = append(l.closed, trade)
		delete(l.positions, position.Symbol)
		closedTrade = &trade

		l.log.Debug("Position closed",
			zap.String("symbol", trade.Symbol),
			zap.Float64("realized_pnl", trade.RealizedPnL),
			zap.String("reason", trade.Reason),
		)
	}

	if err := l.checkInvariant(); err != nil {
		return nil, err
	}

	return closedTrade, nil
}

// ApplyPriceUpdate accrues financing and recomputes unrealized P&L for the
// open position on the tick's instrument. Cash is only touched by the
// financing accrual.
func (l *Ledger) ApplyPriceUpdate(tick types.PriceTick) error {
	position, ok := l.positions[tick.Symbol]
	if !ok {
		return nil
	}

	instrument := l.instruments[tick.Symbol]

	assetPolicy, err := l.policies.ForClass(instrument.AssetClass)
	if err != nil {
		return err
	}

	elapsed := tick.Timestamp.Sub(position.LastFinancingAt)
	if cost := assetPolicy.FinancingCost(position, elapsed); cost != 0 {
		l.cash -= cost
		l.totalFinancing += cost
	}

	position.LastFinancingAt = tick.Timestamp

	// Longs mark against the bid, shorts against the ask.
	mark := tick.Bid
	if position.Quantity < 0 {
		mark = tick.Ask
	}

	position.UnrealizedPnL = position.UnrealizedAt(mark)

	return l.checkInvariant()
}

// CheckLiquidation evaluates the liquidation predicate for the position on
// symbol at markPrice. It reports true at most once per liquidation: the
// position is flagged pending so the same tick cannot emit a duplicate
// request.
func (l *Ledger) CheckLiquidation(symbol string, markPrice float64) (bool, error) {
	position, ok := l.positions[symbol]
	if !ok || position.PendingLiquidation {
		return false, nil
	}

	instrument := l.instruments[symbol]

	assetPolicy, err := l.policies.ForClass(instrument.AssetClass)
	if err != nil {
		return false, err
	}

	if !assetPolicy.LiquidationRequired(position, markPrice) {
		return false, nil
	}

	position.PendingLiquidation = true
	l.log.Warn("Liquidation required",
		zap.String("symbol", symbol),
		zap.Float64("margin", position.Margin),
		zap.Float64("unrealized_pnl", position.UnrealizedPnL),
		zap.Float64("mark_price", markPrice),
	)

	return true, nil
}

// VerifyEquity reports a MarginBreach when account equity is negative.
// Liquidation must trigger strictly before equity can cross zero; if it
// did not, the run is terminated rather than continuing with meaningless
// negative-collateral state.
func (l *Ledger) VerifyEquity() error {
	equity := l.Equity()
	if equity < -equityTolerance {
		return errors.Newf(errors.ErrCodeMarginBreach,
			"account equity went negative: %f", equity)
	}

	return nil
}

// Position returns a copy of the open position for symbol.
func (l *Ledger) Position(symbol string) (types.Position, bool) {
	position, ok := l.positions[symbol]
	if !ok {
		return types.Position{}, false
	}

	return *position, true
}

// ClosedTrades returns the realized history in close order.
func (l *Ledger) ClosedTrades() []types.ClosedTrade {
	return l.closed
}

// Cash returns the free cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// Equity returns cash plus posted margin plus unrealized P&L.
func (l *Ledger) Equity() float64 {
	equity := l.cash
	for _, position := range l.positions {
		equity += position.Margin + position.UnrealizedPnL
	}

	return equity
}

// AccountInfo returns a read-only snapshot of the account state.
func (l *Ledger) AccountInfo() types.AccountInfo {
	var marginUsed, unrealized float64
	for _, position := range l.positions {
		marginUsed += position.Margin
		unrealized += position.UnrealizedPnL
	}

	return types.AccountInfo{
		Cash:           l.cash,
		Equity:         l.cash + marginUsed + unrealized,
		MarginUsed:     marginUsed,
		RealizedPnL:    l.realized,
		UnrealizedPnL:  unrealized,
		TotalFees:      l.totalFees,
		TotalFinancing: l.totalFinancing,
	}
}

// checkInvariant reconciles equity two independent ways: the balance-sheet
// view (cash + margin + unrealized) must equal the flow view (initial cash
// + realized + unrealized - fees - financing).
func (l *Ledger) checkInvariant() error {
	var marginUsed, unrealized float64
	for _, position := range l.positions {
		marginUsed += position.Margin
		unrealized += position.UnrealizedPnL
	}

	balanceView := decimal.NewFromFloat(l.cash).
		Add(decimal.NewFromFloat(marginUsed)).
		Add(decimal.NewFromFloat(unrealized))

	flowView := decimal.NewFromFloat(l.initialCash).
		Add(decimal.NewFromFloat(l.realized)).
		Add(decimal.NewFromFloat(unrealized)).
		Sub(decimal.NewFromFloat(l.totalFees)).
		Sub(decimal.NewFromFloat(l.totalFinancing))

	diff, _ := balanceView.Sub(flowView).Abs().Float64()
	if diff > equityTolerance {
		return errors.Newf(errors.ErrCodeEquityMismatch,
			"equity reconciliation failed: balance view %s vs flow view %s",
			balanceView.String(), flowView.String())
	}

	return nil
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// blendedEntry computes the quantity-weighted average entry price when a
// fill increases exposure in the current direction.
func blendedEntry(quantity, avgPrice, delta, fillPrice float64) float64 {
	existing := decimal.NewFromFloat(math.Abs(quantity)).Mul(decimal.NewFromFloat(avgPrice))
	added := decimal.NewFromFloat(math.Abs(delta)).Mul(decimal.NewFromFloat(fillPrice))
	total := math.Abs(quantity) + math.Abs(delta)

	blended, _ := existing.Add(added).Div(decimal.NewFromFloat(total)).Float64()

	return blended
}

// realizePnL computes (exit - entry) * direction * quantity * multiplier.
func realizePnL(exitPrice, entryPrice, quantity, direction, multiplier float64) float64 {
	pnl, _ := decimal.NewFromFloat(exitPrice).
		Sub(decimal.NewFromFloat(entryPrice)).
		Mul(decimal.NewFromFloat(direction)).
		Mul(decimal.NewFromFloat(quantity)).
		Mul(decimal.NewFromFloat(multiplier)).
		Float64()

	return pnl
}
