package mocks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CandleWalkTestSuite struct {
	suite.Suite
}

func TestCandleWalkTestSuite(t *testing.T) {
	suite.Run(t, new(CandleWalkTestSuite))
}

func (s *CandleWalkTestSuite) TestCandlesAreConsistent() {
	config := DefaultWalkConfig()
	candles := NewCandleWalk(42, config).Take(200)

	s.Require().Len(candles, 200)

	for i, c := range candles {
		s.Equal(config.Symbol, c.Symbol)
		s.Equal(config.Timeframe, c.Timeframe)
		s.GreaterOrEqual(c.High, c.Low)
		s.GreaterOrEqual(c.High, c.Close)
		s.LessOrEqual(c.Low, c.Close)
		s.Positive(c.Close)

		if i > 0 {
			s.Equal(config.Interval, c.Time.Sub(candles[i-1].Time))
			s.InDelta(candles[i-1].Close, c.Open, 1e-3)
		}
	}
}

func (s *CandleWalkTestSuite) TestSeedIsReproducible() {
	a := NewCandleWalk(7, DefaultWalkConfig()).Take(20)
	b := NewCandleWalk(7, DefaultWalkConfig()).Take(20)
	c := NewCandleWalk(8, DefaultWalkConfig()).Take(20)

	s.Equal(Closes(a), Closes(b))
	s.NotEqual(Closes(a), Closes(c))
}

func (s *CandleWalkTestSuite) TestForming() {
	c := NewCandleWalk(1, DefaultWalkConfig()).Next()

	up := Forming(c, c.High+10)
	s.Equal(c.High+10, up.High)
	s.Equal(c.Time, up.Time)

	down := Forming(c, c.Low-10)
	s.Equal(c.Low-10, down.Low)
}

func (s *CandleWalkTestSuite) TestCandlesFromCloses() {
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	candles := CandlesFromCloses("ETHUSDT", "5m", start, []float64{10, 12, 11})

	s.Require().Len(candles, 3)
	s.Equal([]float64{10, 12, 11}, Closes(candles))
	s.Equal(12.0, candles[2].Open)
	s.Equal(12.0, candles[2].High)
	s.Equal(start.Add(2*time.Minute), candles[2].Time)
}
