package twap

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/algo/algotest"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/internal/utils"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type TWAPTestSuite struct {
	suite.Suite
}

func TestTWAPTestSuite(t *testing.T) {
	suite.Run(t, new(TWAPTestSuite))
}

func fixedParams() map[string]any {
	return map[string]any{
		"symbol":        "BTCUSDT",
		"amount":        1.0,
		"sliceAmount":   0.25,
		"sliceInterval": 1000,
		"priceTarget":   "FIXED",
		"price":         100.0,
	}
}

func bookUpdate(bid, ask float64) algo.BookUpdate {
	return algo.BookUpdate{Book: types.Book{
		Symbol: "BTCUSDT",
		Bids:   []types.PriceLevel{{Price: bid, Amount: 1}},
		Asks:   []types.PriceLevel{{Price: ask, Amount: 1}},
		Time:   time.Now(),
	}}
}

func (s *TWAPTestSuite) TestFixedTargetSubmitsEveryInterval() {
	rec := algotest.New(s.T(), Definition, fixedParams())
	rec.Start()

	first := rec.LastSubmit()
	s.Require().Len(first, 1)
	s.Equal(0.25, first[0].Amount)
	s.Equal(100.0, first[0].PriceOr(0))
	s.Empty(rec.Channels)

	timers := rec.Timers()
	s.Require().Len(timers, 1)
	s.Equal(time.Second, timers[0].Delay)

	rec.AckSubmitted()
	rec.FillAll(first[0].CID)
	s.Equal(0.75, data(rec.Inst).RemainingAmount)

	s.Require().True(rec.Fire(eventIntervalTick))
	s.Len(rec.Submits, 2)
	s.Empty(rec.Cancels)

	// the unfilled slice is cancelled before the next one goes out
	rec.AckSubmitted()
	s.Require().True(rec.Fire(eventIntervalTick))
	s.Require().Len(rec.Cancels, 1)
	s.Equal(rec.Submits[1].Orders[0].CID, rec.Cancels[0].Orders[0].CID)
	s.Len(rec.Submits, 3)
	s.Equal(3, data(rec.Inst).Ticks)
}

func (s *TWAPTestSuite) TestTradeBeyondEndKeepsOpenSlices() {
	params := fixedParams()
	params["tradeBeyondEnd"] = true
	params["amount"] = 0.5

	rec := algotest.New(s.T(), Definition, params)
	rec.Start()
	rec.AckSubmitted()

	s.Require().True(rec.Fire(eventIntervalTick))
	rec.AckSubmitted()
	s.Empty(rec.Cancels)
	s.Len(rec.Submits, 2)

	// both slices are open and cover the whole amount
	s.Require().True(rec.Fire(eventIntervalTick))
	s.Len(rec.Submits, 2)
}

func (s *TWAPTestSuite) TestCompletesWhenFilled() {
	rec := algotest.New(s.T(), Definition, fixedParams())
	rec.Start()

	for i := 0; i < 4; i++ {
		rec.AckSubmitted()
		rec.FillAll(rec.LastSubmit()[0].CID)

		if i < 3 {
			s.Require().True(rec.Fire(eventIntervalTick))
		}
	}

	s.True(rec.Inst.Stopping())
	s.Len(rec.Stops, 1)
	s.Empty(rec.Timers())
	s.InDelta(1.0, utils.SumAmounts(amounts(rec.SubmittedOrders())), types.DustAmount)
}

func (s *TWAPTestSuite) TestBookMidWaitsForData() {
	params := fixedParams()
	params["priceTarget"] = "OB_MID"
	delete(params, "price")

	rec := algotest.New(s.T(), Definition, params)
	rec.Start()

	s.Empty(rec.Submits)
	s.Equal([]types.Channel{types.BookChannel("BTCUSDT")}, rec.Channels)

	rec.Deliver(bookUpdate(99, 101))
	s.Require().True(rec.Fire(eventIntervalTick))

	order := rec.LastSubmit()[0]
	s.Equal(100.0, order.PriceOr(0))
}

func (s *TWAPTestSuite) TestSideAndLastTargets() {
	params := fixedParams()
	params["priceTarget"] = "OB_SIDE"
	params["amount"] = -1.0
	params["sliceAmount"] = -0.25

	rec := algotest.New(s.T(), Definition, params)
	rec.Deliver(bookUpdate(99, 101))
	rec.Start()
	s.Equal(101.0, rec.LastSubmit()[0].PriceOr(0))

	params["priceTarget"] = "LAST"

	rec = algotest.New(s.T(), Definition, params)
	rec.Start()
	s.Empty(rec.Submits)
	s.Equal([]types.Channel{types.TradesChannel("BTCUSDT")}, rec.Channels)

	rec.Deliver(algo.TradesUpdate{Symbol: "BTCUSDT", Trades: []types.Trade{{ID: 1, Symbol: "BTCUSDT", Price: 98, Amount: 1, Time: time.Now()}}})
	s.Require().True(rec.Fire(eventIntervalTick))
	s.Equal(98.0, rec.LastSubmit()[0].PriceOr(0))
}

func (s *TWAPTestSuite) TestCustomTargetMatchMidpoint() {
	params := fixedParams()
	params["priceTarget"] = "CUSTOM"
	params["priceCondition"] = "MATCH_MIDPOINT"
	params["priceDelta"] = 1.0

	rec := algotest.New(s.T(), Definition, params)
	rec.Deliver(bookUpdate(104, 106))
	rec.Start()
	s.Empty(rec.Submits)

	rec.Deliver(bookUpdate(100, 101))
	s.Require().True(rec.Fire(eventIntervalTick))
	s.Equal(100.0, rec.LastSubmit()[0].PriceOr(0))
}

func (s *TWAPTestSuite) TestCustomSoftNeedsAnyData() {
	params := fixedParams()
	params["priceTarget"] = "CUSTOM"

	rec := algotest.New(s.T(), Definition, params)
	rec.Start()
	s.Empty(rec.Submits)
	s.Len(rec.Channels, 2)

	rec.Deliver(algo.TradesUpdate{Symbol: "BTCUSDT", Trades: []types.Trade{{ID: 1, Symbol: "BTCUSDT", Price: 500, Amount: 1, Time: time.Now()}}})
	s.Require().True(rec.Fire(eventIntervalTick))
	s.Equal(100.0, rec.LastSubmit()[0].PriceOr(0))
}

func (s *TWAPTestSuite) TestMarketSlicesNeedNoPrice() {
	params := fixedParams()
	params["priceTarget"] = "OB_MID"
	params["orderType"] = "MARKET"

	rec := algotest.New(s.T(), Definition, params)
	rec.Start()

	order := rec.LastSubmit()[0]
	s.Equal(types.OrderTypeMarket, order.Type)
	s.True(order.Price.IsNone())
}

func (s *TWAPTestSuite) TestValidation() {
	params := fixedParams()
	delete(params, "price")

	_, err := algo.InitInstance(Definition, params, algo.NewGIDGenerator())
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	params = fixedParams()
	params["sliceAmount"] = -0.25
	_, err = algo.InitInstance(Definition, params, algo.NewGIDGenerator())
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	params = fixedParams()
	params["priceCondition"] = "MATCH_LAST"
	_, err = algo.InitInstance(Definition, params, algo.NewGIDGenerator())
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	_, err = algo.InitInstance(VWAP, fixedParams(), algo.NewGIDGenerator())
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *TWAPTestSuite) TestVWAPWeightedSlicesSumToAmount() {
	params := fixedParams()
	params["amount"] = -2.0
	params["weights"] = []float64{1, 2, 3, 4}
	delete(params, "sliceAmount")

	rec := algotest.New(s.T(), VWAP, params)
	rec.Start()

	for i := 0; i < 4; i++ {
		rec.AckSubmitted()
		rec.FillAll(rec.LastSubmit()[0].CID)

		if !rec.Inst.Stopping() {
			s.Require().True(rec.Fire(eventIntervalTick))
		}
	}

	got := amounts(rec.SubmittedOrders())
	s.Equal([]float64{-0.2, -0.4, -0.6, -0.8}, got)
	s.Equal(-2.0, utils.SumAmounts(got))
	s.True(rec.Inst.Stopping())
}

func (s *TWAPTestSuite) TestBucketsSumExactly() {
	rng := rand.New(rand.NewPCG(7, 11))

	for run := 0; run < 50; run++ {
		weights := make([]float64, 1+rng.IntN(24))
		for i := range weights {
			weights[i] = rng.Float64() * 10
		}

		weights[0]++
		total := -(0.01 + rng.Float64()*10)

		buckets := Buckets(total, weights)
		s.Len(buckets, len(weights))
		s.InDelta(total, utils.SumAmounts(buckets), types.DustAmount)

		for _, b := range buckets {
			s.LessOrEqual(b, types.DustAmount)
		}
	}
}

func (s *TWAPTestSuite) TestBucketIndexClamps() {
	s.Equal(0, BucketIndex(0, 4))
	s.Equal(2, BucketIndex(2, 4))
	s.Equal(3, BucketIndex(9, 4))
	s.Equal(0, BucketIndex(3, 0))
}

func (s *TWAPTestSuite) TestPreview() {
	orders, err := Definition.Preview(fixedParams())
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal(0.25, orders[0].Amount)

	params := fixedParams()
	params["priceTarget"] = "OB_MID"
	orders, err = Definition.Preview(params)
	s.Require().NoError(err)
	s.Empty(orders)
}

func amounts(orders []types.Order) []float64 {
	out := make([]float64, len(orders))
	for i, o := range orders {
		out[i] = o.AmountOrig
	}

	return out
}
