package mocks

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/types"
)

// WalkConfig configures a CandleWalk.
type WalkConfig struct {
	Symbol    string
	Timeframe string
	Start     time.Time
	Interval  time.Duration
	Price     float64
	// Volatility is the standard deviation of the close-to-close return.
	Volatility float64
	Volume     float64
}

// DefaultWalkConfig returns a one minute BTCUSDT walk around 30000.
func DefaultWalkConfig() WalkConfig {
	return WalkConfig{
		Symbol:     "BTCUSDT",
		Timeframe:  "1m",
		Start:      time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC),
		Interval:   time.Minute,
		Price:      30000,
		Volatility: 0.002,
		Volume:     10,
	}
}

// CandleWalk produces a reproducible stream of candles following a geometric random walk.
type CandleWalk struct {
	rng    *rand.Rand
	config WalkConfig
	price  float64
	next   time.Time
}

func NewCandleWalk(seed uint64, config WalkConfig) *CandleWalk {
	return &CandleWalk{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		config: config,
		price:  config.Price,
		next:   config.Start,
	}
}

// Next returns the next closed candle.
func (w *CandleWalk) Next() types.Candle {
	open := w.price

	closePrice := open * (1 + w.config.Volatility*w.rng.NormFloat64())
	if closePrice <= 0 {
		closePrice = open * 0.99
	}

	wick := w.config.Volatility * open * 0.5

	c := types.Candle{
		Symbol:    w.config.Symbol,
		Timeframe: w.config.Timeframe,
		Time:      w.next,
		Open:      round(open, 4),
		High:      round(math.Max(open, closePrice)+wick*w.rng.Float64(), 4),
		Low:       round(math.Max(math.Min(open, closePrice)-wick*w.rng.Float64(), 0), 4),
		Close:     round(closePrice, 4),
		Volume:    round(w.config.Volume*(0.5+w.rng.Float64()), 2),
	}

	w.price = closePrice
	w.next = w.next.Add(w.config.Interval)

	return c
}

// Take returns the next n candles.
func (w *CandleWalk) Take(n int) []types.Candle {
	candles := make([]types.Candle, n)
	for i := range candles {
		candles[i] = w.Next()
	}

	return candles
}

// Forming returns c with its close moved to price, as the exchange reports a candle that is
// still open.
func Forming(c types.Candle, price float64) types.Candle {
	c.Close = price
	c.High = math.Max(c.High, price)
	c.Low = math.Min(c.Low, price)

	return c
}

// Closes returns the close prices of candles.
func Closes(candles []types.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	return closes
}

// CandlesFromCloses builds one minute candles whose closes follow closes exactly. Each candle
// opens at the previous close, which makes indicator values predictable in tests.
func CandlesFromCloses(symbol, timeframe string, start time.Time, closes []float64) []types.Candle {
	candles := make([]types.Candle, len(closes))

	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}

		candles[i] = types.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Time:      start.Add(time.Duration(i) * time.Minute),
			Open:      open,
			High:      math.Max(open, c),
			Low:       math.Min(open, c),
			Close:     c,
			Volume:    1,
		}
	}

	return candles
}

func round(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
