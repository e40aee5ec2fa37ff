package datasource

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/chronoton-lab/chronoton/internal/logger"
	"github.com/chronoton-lab/chronoton/internal/types"
)

type DataSourceTestSuite struct {
	suite.Suite
	logger *logger.Logger
	start  time.Time
}

func TestDataSourceSuite(t *testing.T) {
	suite.Run(t, new(DataSourceTestSuite))
}

func (suite *DataSourceTestSuite) SetupSuite() {
	suite.logger = logger.NewNopLogger()
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *DataSourceTestSuite) writeCSV(name, content string) string {
	path := filepath.Join(suite.T().TempDir(), name)
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0644))

	return path
}

func (suite *DataSourceTestSuite) TestDuckDBTickSourceReadsCSV() {
	path := suite.writeCSV("ticks.csv", `symbol,timestamp,bid,ask
EURUSD,2024-01-01 00:00:00,99.5,100.5
EURUSD,2024-01-01 00:01:00,100.0,101.0
EURUSD,2024-01-01 00:02:00,98.0,99.0
`)

	source, err := NewDuckDBTickSource(suite.logger)
	suite.Require().NoError(err)
	defer source.Close()

	suite.Require().NoError(source.Initialize(path))

	count, err := source.Count(optional.None[time.Time](), optional.None[time.Time]())
	suite.Require().NoError(err)
	suite.Assert().Equal(3, count)

	var ticks []types.PriceTick

	for tick, err := range source.ReadAll(optional.None[time.Time](), optional.None[time.Time]()) {
		suite.Require().NoError(err)
		ticks = append(ticks, tick)
	}

	suite.Require().Len(ticks, 3)
	suite.Assert().Equal("EURUSD", ticks[0].Symbol)
	suite.Assert().Equal(99.5, ticks[0].Bid)
	suite.Assert().Equal(100.5, ticks[0].Ask)
	// Timestamp order is preserved.
	suite.Assert().True(ticks[0].Timestamp.Before(ticks[1].Timestamp))
	suite.Assert().True(ticks[1].Timestamp.Before(ticks[2].Timestamp))
}

func (suite *DataSourceTestSuite) TestDuckDBTickSourceSkipsUnusableRows() {
	path := suite.writeCSV("ticks.csv", `symbol,timestamp,bid,ask
EURUSD,2024-01-01 00:00:00,99.5,100.5
EURUSD,2024-01-01 00:01:00,0,101.0
EURUSD,2024-01-01 00:02:00,100.0,99.0
EURUSD,2024-01-01 00:03:00,98.0,99.0
`)

	source, err := NewDuckDBTickSource(suite.logger)
	suite.Require().NoError(err)
	defer source.Close()

	suite.Require().NoError(source.Initialize(path))

	var ticks []types.PriceTick

	for tick, err := range source.ReadAll(optional.None[time.Time](), optional.None[time.Time]()) {
		suite.Require().NoError(err)
		ticks = append(ticks, tick)
	}

	// The zero-bid and crossed-book rows are dropped.
	suite.Require().Len(ticks, 2)
	suite.Assert().Equal(99.5, ticks[0].Bid)
	suite.Assert().Equal(98.0, ticks[1].Bid)
}

func (suite *DataSourceTestSuite) TestDuckDBTickSourceMissingFile() {
	source, err := NewDuckDBTickSource(suite.logger)
	suite.Require().NoError(err)
	defer source.Close()

	err = source.Initialize(filepath.Join(suite.T().TempDir(), "missing.csv"))
	suite.Require().Error(err)
}

func (suite *DataSourceTestSuite) TestSliceTickSourceSkipsNaN() {
	ticks := []types.PriceTick{
		{Symbol: "EURUSD", Timestamp: suite.start, Bid: 100, Ask: 100},
		{Symbol: "EURUSD", Timestamp: suite.start.Add(time.Minute), Bid: math.NaN(), Ask: 100},
		{Symbol: "EURUSD", Timestamp: suite.start.Add(2 * time.Minute), Bid: 101, Ask: 101},
	}

	source := NewSliceTickSource(ticks)

	var got []types.PriceTick

	for tick, err := range source.ReadAll(optional.None[time.Time](), optional.None[time.Time]()) {
		suite.Require().NoError(err)
		got = append(got, tick)
	}

	suite.Require().Len(got, 2)
	suite.Assert().Equal(100.0, got[0].Bid)
	suite.Assert().Equal(101.0, got[1].Bid)
}

func (suite *DataSourceTestSuite) TestTickWindowRestrictsReplay() {
	ticks := []types.PriceTick{
		{Symbol: "EURUSD", Timestamp: suite.start, Bid: 100, Ask: 100},
		{Symbol: "EURUSD", Timestamp: suite.start.Add(time.Minute), Bid: 101, Ask: 101},
		{Symbol: "EURUSD", Timestamp: suite.start.Add(2 * time.Minute), Bid: 102, Ask: 102},
	}

	source := NewSliceTickSource(ticks)

	start := optional.Some(suite.start.Add(time.Minute))
	end := optional.Some(suite.start.Add(time.Minute))

	count, err := source.Count(start, end)
	suite.Require().NoError(err)
	suite.Assert().Equal(1, count)

	var got []types.PriceTick

	for tick, err := range source.ReadAll(start, end) {
		suite.Require().NoError(err)
		got = append(got, tick)
	}

	suite.Require().Len(got, 1)
	suite.Assert().Equal(101.0, got[0].Bid)
}

func (suite *DataSourceTestSuite) TestDuckDBIntentSourceReadsCSV() {
	path := suite.writeCSV("intents.csv", `id,symbol,side,kind,quantity,timestamp,limit_price,reason,message
a,EURUSD,LONG,MARKET,10,2024-01-01 00:00:00,,strategy,entry
b,EURUSD,CLOSE,LIMIT,10,2024-01-01 00:05:00,105.5,strategy,exit
`)

	source, err := NewDuckDBIntentSource(path, suite.logger)
	suite.Require().NoError(err)
	defer source.Close()

	var intents []types.OrderIntent

	for intent, err := range source.ReadAll() {
		suite.Require().NoError(err)
		intents = append(intents, intent)
	}

	suite.Require().Len(intents, 2)

	suite.Assert().Equal("a", intents[0].ID)
	suite.Assert().Equal(types.SideLong, intents[0].Side)
	suite.Assert().Equal(types.OrderKindMarket, intents[0].Kind)
	suite.Assert().True(intents[0].LimitPrice.IsNone())

	suite.Assert().Equal(types.SideClose, intents[1].Side)
	suite.Assert().Equal(types.OrderKindLimit, intents[1].Kind)
	suite.Require().True(intents[1].LimitPrice.IsSome())
	suite.Assert().Equal(105.5, intents[1].LimitPrice.Unwrap())
}

func (suite *DataSourceTestSuite) TestSliceIntentSourceYieldsInOrder() {
	intents := []types.OrderIntent{
		{ID: "a", Symbol: "EURUSD", Side: types.SideLong, Kind: types.OrderKindMarket, Quantity: 1, Timestamp: suite.start},
		{ID: "b", Symbol: "EURUSD", Side: types.SideClose, Kind: types.OrderKindLimit, Quantity: 1, Timestamp: suite.start.Add(time.Minute), LimitPrice: optional.Some(105.0)},
	}

	source := NewSliceIntentSource(intents)

	var got []types.OrderIntent

	for intent, err := range source.ReadAll() {
		suite.Require().NoError(err)
		got = append(got, intent)
	}

	suite.Require().Len(got, 2)
	suite.Assert().Equal("a", got[0].ID)
	suite.Assert().Equal("b", got[1].ID)
}
