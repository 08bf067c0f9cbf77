package pingpong

import (
	"math"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/algo/algotest"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/mocks"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type PingPongTestSuite struct {
	suite.Suite
}

func TestPingPongTestSuite(t *testing.T) {
	suite.Run(t, new(PingPongTestSuite))
}

func gridParams() map[string]any {
	return map[string]any{
		"symbol":       "BTCUSDT",
		"amount":       0.5,
		"pingMinPrice": 100.0,
		"pingMaxPrice": 104.0,
		"pongDistance": 2.0,
		"orderCount":   3,
	}
}

func (s *PingPongTestSuite) TestBuildTable() {
	s.Equal([]Level{{Ping: 100, Pong: 102}, {Ping: 102, Pong: 104}, {Ping: 104, Pong: 106}},
		BuildTable(100, 104, 2, 3, 0.5))

	s.Equal([]Level{{Ping: 100, Pong: 98}, {Ping: 102, Pong: 100}, {Ping: 104, Pong: 102}},
		BuildTable(100, 104, 2, 3, -0.5))

	s.Equal([]Level{{Ping: 0.1, Pong: 0.15}}, BuildTable(0.1, 0.1, 0.05, 1, 1))
	s.Nil(BuildTable(1, 2, 1, 0, 1))
}

func (s *PingPongTestSuite) TestSubmitsPingsOnStart() {
	rec := algotest.New(s.T(), Definition, gridParams())
	rec.Start()

	pings := rec.LastSubmit()
	s.Require().Len(pings, 3)

	for i, o := range pings {
		s.Equal(0.5, o.Amount)
		s.Equal(100+2*float64(i), o.PriceOr(0))
		s.Equal(LabelPing, o.Label)
		s.Equal(i, data(rec.Inst).Pings[o.CID])
	}

	s.Empty(rec.Channels)
}

func (s *PingPongTestSuite) TestPingFillSubmitsPong() {
	rec := algotest.New(s.T(), Definition, gridParams())
	rec.Start()
	rec.AckSubmitted()

	ping := rec.LastSubmit()[1]

	// partial fills wait for the rest of the ping
	rec.Fill(ping.CID, 0.2)
	s.Len(rec.Submits, 1)

	rec.FillAll(ping.CID)
	s.Require().Len(rec.Submits, 2)

	pong := rec.LastSubmit()[0]
	s.Equal(-0.5, pong.Amount)
	s.Equal(104.0, pong.PriceOr(0))
	s.Equal(LabelPong, pong.Label)
	s.NotContains(data(rec.Inst).Pings, ping.CID)
	s.Equal(1, data(rec.Inst).Pongs[pong.CID])
}

func (s *PingPongTestSuite) TestCompletesWhenEverythingFilled() {
	rec := algotest.New(s.T(), Definition, gridParams())
	rec.Start()
	rec.AckSubmitted()

	for _, ping := range rec.Submits[0].Orders {
		rec.FillAll(ping.CID)
		rec.AckSubmitted()
		s.False(rec.Inst.Stopping())
		rec.FillAll(rec.LastSubmit()[0].CID)
	}

	s.True(rec.Inst.Stopping())
	s.Len(rec.Stops, 1)
	s.Require().Len(rec.Notifies, 1)
	s.Equal(algo.NotifySuccess, rec.Notifies[0].Level)
	s.Len(rec.Submits, 4)
}

func (s *PingPongTestSuite) TestEndlessRearmsPing() {
	params := gridParams()
	params["endless"] = true

	rec := algotest.New(s.T(), Definition, params)
	rec.Start()
	rec.AckSubmitted()

	ping := rec.LastSubmit()[0]
	rec.FillAll(ping.CID)
	rec.AckSubmitted()
	rec.FillAll(rec.LastSubmit()[0].CID)

	s.Require().Len(rec.Submits, 3)

	again := rec.LastSubmit()[0]
	s.NotEqual(ping.CID, again.CID)
	s.Equal(0.5, again.Amount)
	s.Equal(100.0, again.PriceOr(0))
	s.Equal(0, data(rec.Inst).Pings[again.CID])
	s.Empty(data(rec.Inst).Pongs)
	s.False(rec.Inst.Stopping())
}

func (s *PingPongTestSuite) TestSeedsFromBollingerBands() {
	params := gridParams()
	params["orderCount"] = 2
	params["pongDistance"] = 0.0
	params["bbands"] = map[string]any{"period": 3, "multiplier": 2.0}
	delete(params, "pingMinPrice")
	delete(params, "pingMaxPrice")

	rec := algotest.New(s.T(), Definition, params)
	rec.Start()

	s.Empty(rec.Submits)
	s.Equal([]types.Channel{types.CandlesChannel("BTCUSDT", "1m")}, rec.Channels)

	candles := mocks.CandlesFromCloses("BTCUSDT", "1m", time.Now().Add(-time.Hour), []float64{10, 20, 30})
	rec.Deliver(algo.CandlesUpdate{Symbol: "BTCUSDT", Timeframe: "1m", Candles: candles, Snapshot: true})

	width := 2 * math.Sqrt(200.0/3)
	pings := rec.LastSubmit()
	s.Require().Len(pings, 2)
	s.InDelta(20-width, pings[0].PriceOr(0), 1e-6)
	s.InDelta(20.0, pings[1].PriceOr(0), 1e-6)
	s.InDelta(20+width, data(rec.Inst).Table[1].Pong, 1e-6)
	s.True(data(rec.Inst).Seeded)

	more := mocks.CandlesFromCloses("BTCUSDT", "1m", time.Now(), []float64{40})
	rec.Deliver(algo.CandlesUpdate{Symbol: "BTCUSDT", Timeframe: "1m", Candles: more, Snapshot: false})
	s.Len(rec.Submits, 1)
}

func (s *PingPongTestSuite) TestSellGridSeedsAboveMiddle() {
	p := &Params{Amount: -1, OrderCount: 2}
	table := SeedTable(30, 20, 10, p)

	s.Equal([]Level{{Ping: 20, Pong: 10}, {Ping: 30, Pong: 20}}, table)
}

func (s *PingPongTestSuite) TestExternalCancelStops() {
	rec := algotest.New(s.T(), Definition, gridParams())
	rec.Start()
	rec.AckSubmitted()

	rec.CancelExternally(rec.LastSubmit()[0].CID)

	s.True(rec.Inst.Stopping())
	s.Require().Len(rec.Notifies, 1)
	s.Equal(algo.NotifyError, rec.Notifies[0].Level)
}

func (s *PingPongTestSuite) TestValidation() {
	params := gridParams()
	params["pingMaxPrice"] = 90.0

	_, err := algo.InitInstance(Definition, params, algo.NewGIDGenerator())
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	params = gridParams()
	params["pongDistance"] = 0.0
	_, err = algo.InitInstance(Definition, params, algo.NewGIDGenerator())
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	params = gridParams()
	params["amount"] = -0.5
	params["pongDistance"] = 100.0
	_, err = algo.InitInstance(Definition, params, algo.NewGIDGenerator())
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *PingPongTestSuite) TestPreviewAndLabel() {
	orders, err := Definition.Preview(gridParams())
	s.Require().NoError(err)
	s.Len(orders, 3)

	rec := algotest.New(s.T(), Definition, gridParams())
	s.Equal("Ping/Pong | 0.5 x3 | 100-104", rec.Inst.State.Label)
}
