package triangular

import (
	"testing"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/algo/algotest"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type TriangularTestSuite struct {
	suite.Suite
}

func TestTriangularTestSuite(t *testing.T) {
	suite.Run(t, new(TriangularTestSuite))
}

func chainParams() map[string]any {
	return map[string]any{
		"legs": []map[string]any{
			{"symbol": "BTCUSDT", "side": "buy"},
			{"symbol": "ETHBTC", "side": "buy"},
			{"symbol": "ETHUSDT", "side": "sell"},
		},
		"amount": 0.01,
	}
}

func book(symbol string, bid, ask float64) algo.BookUpdate {
	return algo.BookUpdate{Book: types.Book{
		Symbol: symbol,
		Bids:   []types.PriceLevel{{Price: bid, Amount: 10}},
		Asks:   []types.PriceLevel{{Price: ask, Amount: 10}},
		Time:   time.Now(),
	}}
}

// execute closes the order cid as fully executed at an average price.
func execute(rec *algotest.Recorder, cid string, avg float64) {
	o := rec.Inst.State.Orders[cid]
	o.Amount = 0
	o.PriceAvg = avg
	o.Status = types.OrderStatusExecuted

	rec.Deliver(algo.ExchangeOrder{Event: types.OrderEvent{Kind: types.OrderEventClose, Order: o}})
}

func (s *TriangularTestSuite) TestLegsRunStrictlyInSequence() {
	rec := algotest.New(s.T(), Definition, chainParams())
	rec.Start()

	s.Equal([]types.Channel{
		types.BookChannel("BTCUSDT"),
		types.BookChannel("ETHBTC"),
		types.BookChannel("ETHUSDT"),
	}, rec.Channels)

	leg1 := rec.LastSubmit()[0]
	s.Equal("BTCUSDT", leg1.Symbol)
	s.Equal(0.01, leg1.Amount)
	s.Equal(types.OrderTypeMarket, leg1.Type)

	rec.Deliver(book("ETHBTC", 0.049, 0.05))
	rec.AckSubmitted()
	rec.Fill(leg1.CID, 0.004)
	s.Len(rec.Submits, 1)

	execute(rec, leg1.CID, 30000)
	s.Require().Len(rec.Submits, 2)

	leg2 := rec.LastSubmit()[0]
	s.Equal("ETHBTC", leg2.Symbol)
	s.InDelta(0.2, leg2.Amount, types.DustAmount)
	s.Equal(1, data(rec.Inst).Leg)

	rec.AckSubmitted()
	execute(rec, leg2.CID, 0.05)
	s.Require().Len(rec.Submits, 3)

	leg3 := rec.LastSubmit()[0]
	s.Equal("ETHUSDT", leg3.Symbol)
	s.InDelta(-0.2, leg3.Amount, types.DustAmount)

	rec.AckSubmitted()
	s.False(rec.Inst.Stopping())
	execute(rec, leg3.CID, 3000)

	s.True(rec.Inst.Stopping())
	s.Require().Len(rec.Notifies, 1)
	s.Equal(algo.NotifySuccess, rec.Notifies[0].Level)
	s.Len(rec.Submits, 3)
}

func (s *TriangularTestSuite) TestNextLegWaitsForPrice() {
	rec := algotest.New(s.T(), Definition, chainParams())
	rec.Start()
	rec.AckSubmitted()

	execute(rec, rec.LastSubmit()[0].CID, 30000)
	s.Len(rec.Submits, 1)
	s.True(data(rec.Inst).Waiting)

	rec.Deliver(book("ETHUSDT", 2999, 3001))
	s.Len(rec.Submits, 1)

	rec.Deliver(book("ETHBTC", 0.039, 0.04))
	s.Require().Len(rec.Submits, 2)
	s.InDelta(0.25, rec.LastSubmit()[0].Amount, types.DustAmount)
	s.False(data(rec.Inst).Waiting)
}

func (s *TriangularTestSuite) TestLimitLegsUseTakerPrice() {
	params := chainParams()
	params["orderType"] = "LIMIT"

	rec := algotest.New(s.T(), Definition, params)
	rec.Start()
	s.Empty(rec.Submits)

	rec.Deliver(book("BTCUSDT", 29990, 30000))

	leg1 := rec.LastSubmit()[0]
	s.Equal(types.OrderTypeLimit, leg1.Type)
	s.Equal(30000.0, leg1.PriceOr(0))
}

func (s *TriangularTestSuite) TestLegAmountsFollowFilledAmounts() {
	sold := types.NewMarketOrder(1, "ETHUSDT", -0.5)
	sold.Amount = 0
	sold.PriceAvg = 2000

	held := HeldAfter(Leg{Symbol: "ETHUSDT", Side: SideSell}, sold)
	s.InDelta(1000.0, held, 1e-9)

	s.Equal(0.03333333, NextLegAmount(held, Leg{Symbol: "BTCUSDT", Side: SideBuy}, 30000))
	s.Equal(-0.12345678, NextLegAmount(0.123456789, Leg{Symbol: "ETHBTC", Side: SideSell}, 0))
	s.Zero(NextLegAmount(1, Leg{Symbol: "ETHBTC", Side: SideBuy}, 0))

	bought := types.NewLimitOrder(1, "BTCUSDT", 0.4, 30000)
	bought.Amount = 0.1
	s.InDelta(0.3, HeldAfter(Leg{Symbol: "BTCUSDT", Side: SideBuy}, bought), 1e-12)
}

func (s *TriangularTestSuite) TestExternalCancelStops() {
	rec := algotest.New(s.T(), Definition, chainParams())
	rec.Start()
	rec.AckSubmitted()

	rec.CancelExternally(rec.LastSubmit()[0].CID)
	s.True(rec.Inst.Stopping())
}

func (s *TriangularTestSuite) TestValidation() {
	params := chainParams()
	params["legs"] = []map[string]any{
		{"symbol": "BTCUSDT", "side": "buy"},
		{"symbol": "BTCUSDT", "side": "sell"},
		{"symbol": "ETHUSDT", "side": "sell"},
	}

	_, err := algo.InitInstance(Definition, params, algo.NewGIDGenerator())
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	params = chainParams()
	params["legs"] = []map[string]any{
		{"symbol": "BTCUSDT", "side": "hold"},
		{"symbol": "ETHBTC", "side": "buy"},
		{"symbol": "ETHUSDT", "side": "sell"},
	}
	_, err = algo.InitInstance(Definition, params, algo.NewGIDGenerator())
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *TriangularTestSuite) TestPreviewAndLabel() {
	orders, err := Definition.Preview(chainParams())
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal("BTCUSDT", orders[0].Symbol)

	rec := algotest.New(s.T(), Definition, chainParams())
	s.Equal("Triangular | 0.01 | buy BTCUSDT > buy ETHBTC > sell ETHUSDT", rec.Inst.State.Label)
}
