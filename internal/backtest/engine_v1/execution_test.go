package engine

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/chronoton-lab/chronoton/internal/logger"
	"github.com/chronoton-lab/chronoton/internal/policy"
	"github.com/chronoton-lab/chronoton/internal/types"
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

type ExecutionTestSuite struct {
	suite.Suite
	logger    *logger.Logger
	ledger    *Ledger
	execution *ExecutionEngine
	start     time.Time
}

func TestExecutionSuite(t *testing.T) {
	suite.Run(t, new(ExecutionTestSuite))
}

func (suite *ExecutionTestSuite) SetupSuite() {
	suite.logger = logger.NewNopLogger()
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

// SetupTest rebuilds a fresh 10x CFD + share dealing book with 1000 cash.
func (suite *ExecutionTestSuite) SetupTest() {
	cfd, err := policy.NewCFDPolicy(policy.Params{
		LeverageCap:            10,
		MaintenanceMarginRatio: 0.05,
	})
	suite.Require().NoError(err)

	share, err := policy.NewShareDealingPolicy(policy.Params{})
	suite.Require().NoError(err)

	instruments := []types.Instrument{
		{Symbol: "EURUSD", AssetClass: types.AssetClassCFD, TickSize: 0.0001, Multiplier: 1},
		{Symbol: "AAPL", AssetClass: types.AssetClassShareDealing, TickSize: 0.01, Multiplier: 1},
	}

	registry := policy.NewRegistry(cfd, share)
	suite.ledger = NewLedger(instruments, registry, 1000, suite.logger)
	suite.execution = NewExecutionEngine(instruments, registry, suite.ledger, suite.logger)
}

func (suite *ExecutionTestSuite) tick(symbol string, offset time.Duration, bid, ask float64) types.PriceTick {
	return types.PriceTick{
		Symbol:    symbol,
		Timestamp: suite.start.Add(offset),
		Bid:       bid,
		Ask:       ask,
	}
}

func (suite *ExecutionTestSuite) marketIntent(symbol string, side types.Side, quantity float64, offset time.Duration) types.OrderIntent {
	return types.OrderIntent{
		ID:        "intent-1",
		Symbol:    symbol,
		Side:      side,
		Kind:      types.OrderKindMarket,
		Quantity:  quantity,
		Timestamp: suite.start.Add(offset),
		Reason:    types.Reason{Reason: types.OrderReasonStrategy},
	}
}

func (suite *ExecutionTestSuite) limitIntent(symbol string, side types.Side, quantity, limit float64, offset time.Duration) types.OrderIntent {
	intent := suite.marketIntent(symbol, side, quantity, offset)
	intent.Kind = types.OrderKindLimit
	intent.LimitPrice = optional.Some(limit)

	return intent
}

func (suite *ExecutionTestSuite) TestMarketBuyFillsAtAsk() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 99, 101))
	suite.Require().NoError(err)

	fill, err := suite.execution.Submit(suite.marketIntent("EURUSD", types.SideLong, 10, 0))
	suite.Require().NoError(err)
	suite.Require().NotNil(fill)

	suite.Assert().Equal(101.0, fill.Price)
	suite.Assert().Equal(10.0, fill.Quantity)

	position, ok := suite.ledger.Position("EURUSD")
	suite.Require().True(ok)
	suite.Assert().Equal(10.0, position.Quantity)
}

func (suite *ExecutionTestSuite) TestMarketSellFillsAtBid() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 99, 101))
	suite.Require().NoError(err)

	fill, err := suite.execution.Submit(suite.marketIntent("EURUSD", types.SideShort, 10, 0))
	suite.Require().NoError(err)
	suite.Require().NotNil(fill)

	suite.Assert().Equal(99.0, fill.Price)
	suite.Assert().Equal(-10.0, fill.Quantity)
}

func (suite *ExecutionTestSuite) TestSubmitBeforeAnyTickRejected() {
	fill, err := suite.execution.Submit(suite.marketIntent("EURUSD", types.SideLong, 10, 0))
	suite.Require().NoError(err)
	suite.Assert().Nil(fill)
	suite.Assert().Equal(1, suite.execution.Counters().RejectedOrders)
}

func (suite *ExecutionTestSuite) TestUnknownSymbolRejected() {
	fill, err := suite.execution.Submit(suite.marketIntent("UNKNOWN", types.SideLong, 1, 0))
	suite.Require().NoError(err)
	suite.Assert().Nil(fill)
	suite.Assert().Equal(1, suite.execution.Counters().RejectedOrders)
}

func (suite *ExecutionTestSuite) TestCloseWithoutPositionRejected() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 100, 100))
	suite.Require().NoError(err)

	fill, err := suite.execution.Submit(suite.marketIntent("EURUSD", types.SideClose, 10, 0))
	suite.Require().NoError(err)
	suite.Assert().Nil(fill)
	suite.Assert().Equal(1, suite.execution.Counters().RejectedOrders)
}

func (suite *ExecutionTestSuite) TestCloseClampsToPositionSize() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 100, 100))
	suite.Require().NoError(err)

	_, err = suite.execution.Submit(suite.marketIntent("EURUSD", types.SideLong, 10, 0))
	suite.Require().NoError(err)

	// Asking to close 50 only closes the 10 that are open.
	fill, err := suite.execution.Submit(suite.marketIntent("EURUSD", types.SideClose, 50, 0))
	suite.Require().NoError(err)
	suite.Require().NotNil(fill)
	suite.Assert().Equal(-10.0, fill.Quantity)

	_, ok := suite.ledger.Position("EURUSD")
	suite.Assert().False(ok)
}

func (suite *ExecutionTestSuite) TestInsufficientCashRejected() {
	_, err := suite.execution.OnTick(suite.tick("AAPL", 0, 100, 100))
	suite.Require().NoError(err)

	// 20 shares at 100 needs 2000 against 1000 cash.
	fill, err := suite.execution.Submit(suite.marketIntent("AAPL", types.SideLong, 20, 0))
	suite.Require().NoError(err)
	suite.Assert().Nil(fill)
	suite.Assert().Equal(1, suite.execution.Counters().RejectedOrders)
}

func (suite *ExecutionTestSuite) TestLimitBuyRestsUntilCross() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 100, 100))
	suite.Require().NoError(err)

	fill, err := suite.execution.Submit(suite.limitIntent("EURUSD", types.SideLong, 10, 95, 0))
	suite.Require().NoError(err)
	suite.Assert().Nil(fill)
	suite.Assert().Len(suite.execution.PendingOrders(), 1)

	// Ask drops through the limit: the order fills at its limit price.
	fills, err := suite.execution.OnTick(suite.tick("EURUSD", time.Minute, 93, 94))
	suite.Require().NoError(err)
	suite.Require().Len(fills, 1)
	suite.Assert().Equal(95.0, fills[0].Price)
	suite.Assert().Empty(suite.execution.PendingOrders())

	position, ok := suite.ledger.Position("EURUSD")
	suite.Require().True(ok)
	suite.Assert().InDelta(95.0, position.AvgEntryPrice, 1e-9)
}

func (suite *ExecutionTestSuite) TestLimitSellCrossesImmediately() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 100, 100))
	suite.Require().NoError(err)

	// Bid 100 is already at or above the 98 limit.
	fill, err := suite.execution.Submit(suite.limitIntent("EURUSD", types.SideShort, 10, 98, 0))
	suite.Require().NoError(err)
	suite.Require().NotNil(fill)
	suite.Assert().Equal(98.0, fill.Price)
}

func (suite *ExecutionTestSuite) TestLimitCloseOfShortUsesAsk() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 100, 100))
	suite.Require().NoError(err)

	_, err = suite.execution.Submit(suite.marketIntent("EURUSD", types.SideShort, 10, 0))
	suite.Require().NoError(err)

	// Closing a short is a buy: rests until the ask reaches the limit.
	fill, err := suite.execution.Submit(suite.limitIntent("EURUSD", types.SideClose, 10, 90, 0))
	suite.Require().NoError(err)
	suite.Assert().Nil(fill)

	fills, err := suite.execution.OnTick(suite.tick("EURUSD", time.Minute, 89, 90))
	suite.Require().NoError(err)
	suite.Require().Len(fills, 1)
	suite.Assert().Equal(90.0, fills[0].Price)

	_, ok := suite.ledger.Position("EURUSD")
	suite.Assert().False(ok)
}

func (suite *ExecutionTestSuite) TestExpirePendingCounts() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 100, 100))
	suite.Require().NoError(err)

	_, err = suite.execution.Submit(suite.limitIntent("EURUSD", types.SideLong, 10, 95, 0))
	suite.Require().NoError(err)

	expired := suite.execution.ExpirePending()
	suite.Assert().Equal(1, expired)
	suite.Assert().Equal(1, suite.execution.Counters().ExpiredOrders)
	suite.Assert().Empty(suite.execution.PendingOrders())
}

func (suite *ExecutionTestSuite) TestNonMonotonicTickRejected() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", time.Hour, 100, 100))
	suite.Require().NoError(err)

	_, err = suite.execution.OnTick(suite.tick("EURUSD", 0, 100, 100))
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeNonMonotonicTick))
}

func (suite *ExecutionTestSuite) TestLiquidationClosesThroughFillPath() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 100, 100))
	suite.Require().NoError(err)

	_, err = suite.execution.Submit(suite.marketIntent("EURUSD", types.SideLong, 10, 0))
	suite.Require().NoError(err)

	// Price holds: no liquidation.
	fills, err := suite.execution.OnTick(suite.tick("EURUSD", time.Minute, 110, 110))
	suite.Require().NoError(err)
	suite.Assert().Empty(fills)

	// Price halves: margin 100 plus unrealized -500 breaches maintenance.
	fills, err = suite.execution.OnTick(suite.tick("EURUSD", 2*time.Minute, 50, 50))
	suite.Require().NoError(err)
	suite.Require().Len(fills, 1)

	suite.Assert().Equal(types.OrderReasonLiquidation, fills[0].Reason.Reason)
	suite.Assert().Equal(-10.0, fills[0].Quantity)
	suite.Assert().Equal(50.0, fills[0].Price)
	suite.Assert().Equal(1, suite.execution.Counters().Liquidations)

	_, ok := suite.ledger.Position("EURUSD")
	suite.Assert().False(ok)

	// 1000 initial, -500 realized on the forced close.
	suite.Assert().InDelta(500.0, suite.ledger.Equity(), 1e-9)

	trades := suite.ledger.ClosedTrades()
	suite.Require().Len(trades, 1)
	suite.Assert().Equal(types.OrderReasonLiquidation, trades[0].Reason)
}

func (suite *ExecutionTestSuite) TestReplayAssignsIdenticalOrderIDs() {
	// Order intents without an ID, and the liquidation close the engine
	// generates itself, must get the same IDs on every replay.
	replay := func() []types.Fill {
		suite.SetupTest()

		var fills []types.Fill

		tickFills, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 100, 100))
		suite.Require().NoError(err)
		fills = append(fills, tickFills...)

		intent := suite.marketIntent("EURUSD", types.SideLong, 10, 0)
		intent.ID = ""

		fill, err := suite.execution.Submit(intent)
		suite.Require().NoError(err)
		suite.Require().NotNil(fill)
		fills = append(fills, *fill)

		tickFills, err = suite.execution.OnTick(suite.tick("EURUSD", time.Minute, 50, 50))
		suite.Require().NoError(err)
		fills = append(fills, tickFills...)

		return fills
	}

	first := replay()
	second := replay()
	suite.Require().Len(first, 2)
	suite.Assert().NotEmpty(first[0].OrderID)
	suite.Assert().NotEqual(first[0].OrderID, first[1].OrderID)
	suite.Assert().Equal(first, second)
}

func (suite *ExecutionTestSuite) TestShareDealingNeverLiquidates() {
	_, err := suite.execution.OnTick(suite.tick("AAPL", 0, 100, 100))
	suite.Require().NoError(err)

	_, err = suite.execution.Submit(suite.marketIntent("AAPL", types.SideLong, 5, 0))
	suite.Require().NoError(err)

	fills, err := suite.execution.OnTick(suite.tick("AAPL", time.Minute, 50, 50))
	suite.Require().NoError(err)
	suite.Assert().Empty(fills)

	position, ok := suite.ledger.Position("AAPL")
	suite.Require().True(ok)
	suite.Assert().Equal(5.0, position.Quantity)
	suite.Assert().Equal(0, suite.execution.Counters().Liquidations)

	// Equity reflects the unrealized loss but the position survives.
	suite.Assert().InDelta(750.0, suite.ledger.Equity(), 1e-9)
}

func (suite *ExecutionTestSuite) TestMarginBreachOnGap() {
	_, err := suite.execution.OnTick(suite.tick("EURUSD", 0, 100, 100))
	suite.Require().NoError(err)

	_, err = suite.execution.Submit(suite.marketIntent("EURUSD", types.SideLong, 50, 0))
	suite.Require().NoError(err)

	// A gap through the bankruptcy price: liquidation still fills, but the
	// account finishes below zero and the run must halt.
	fills, err := suite.execution.OnTick(suite.tick("EURUSD", time.Minute, 75, 75))
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeMarginBreach))
	suite.Require().Len(fills, 1)
	suite.Assert().Equal(types.OrderReasonLiquidation, fills[0].Reason.Reason)
}
