package types

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/chronoton-lab/chronoton/pkg/errors"
)

type OrderTestSuite struct {
	suite.Suite
}

func TestOrderSuite(t *testing.T) {
	suite.Run(t, new(OrderTestSuite))
}

func (suite *OrderTestSuite) validIntent() OrderIntent {
	return OrderIntent{
		ID:        "intent-1",
		Symbol:    "AAPL",
		Side:      SideLong,
		Kind:      OrderKindMarket,
		Quantity:  100,
		Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Reason:    Reason{Reason: OrderReasonStrategy, Message: "buy signal"},
	}
}

func (suite *OrderTestSuite) TestValidateMarketIntent() {
	intent := suite.validIntent()
	suite.NoError(intent.Validate())
}

func (suite *OrderTestSuite) TestValidateLimitIntent() {
	intent := suite.validIntent()
	intent.Kind = OrderKindLimit
	intent.LimitPrice = optional.Some(99.5)
	suite.NoError(intent.Validate())
}

func (suite *OrderTestSuite) TestValidateRejectsZeroQuantity() {
	intent := suite.validIntent()
	intent.Quantity = 0

	err := intent.Validate()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidIntent))
}

func (suite *OrderTestSuite) TestValidateRejectsUnknownSide() {
	intent := suite.validIntent()
	intent.Side = Side("HOLD")
	suite.Error(intent.Validate())
}

func (suite *OrderTestSuite) TestValidateRejectsLimitWithoutPrice() {
	intent := suite.validIntent()
	intent.Kind = OrderKindLimit

	err := intent.Validate()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidIntent))
}

func (suite *OrderTestSuite) TestValidateRejectsNonPositiveLimitPrice() {
	intent := suite.validIntent()
	intent.Kind = OrderKindLimit
	intent.LimitPrice = optional.Some(0.0)

	err := intent.Validate()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidPrice))
}
