// Package pricing keeps the latest market data an algo order has seen and resolves
// price sources (top of book, last trade, moving averages) from it.
package pricing

import (
	"fmt"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/indicator"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

// Source names a live price.
type Source string

const (
	SourceBid   Source = "bid"
	SourceAsk   Source = "ask"
	SourceMid   Source = "mid"
	SourceTrade Source = "trade"
	SourceSMA   Source = "sma"
	SourceEMA   Source = "ema"
)

// Channel returns the market data channel that feeds src.
func (s Source) Channel(symbol, timeframe string) types.Channel {
	switch s {
	case SourceTrade:
		return types.TradesChannel(symbol)
	case SourceSMA, SourceEMA:
		return types.CandlesChannel(symbol, timeframe)
	case SourceBid, SourceAsk, SourceMid:
		return types.BookChannel(symbol)
	}

	return types.BookChannel(symbol)
}

// Market is the market data view of one symbol. It is owned by one instance and only
// touched from its event loop.
type Market struct {
	Symbol string

	book      types.Book
	hasBook   bool
	last      float64
	hasLast   bool
	registry  indicator.IndicatorRegistry
	averages  map[string]*indicator.CandleFeed
	periods   map[Source][]int
	timeframe string
}

func averageKey(src Source, period int) string {
	return fmt.Sprintf("%s:%d", src, period)
}

// NewMarket returns an empty view of symbol.
func NewMarket(symbol string) *Market {
	return &Market{
		Symbol:    symbol,
		book:      types.Book{Symbol: symbol, Bids: nil, Asks: nil},
		hasBook:   false,
		last:      0,
		hasLast:   false,
		registry:  indicator.NewDefaultRegistry(),
		averages:  make(map[string]*indicator.CandleFeed),
		periods:   make(map[Source][]int),
		timeframe: "",
	}
}

// Track adds a moving average source computed over period candle closes of timeframe.
// Averages of the same source with different periods are tracked independently.
func (m *Market) Track(src Source, period int, timeframe string) error {
	var kind types.IndicatorType

	switch src {
	case SourceSMA:
		kind = types.IndicatorTypeMA
	case SourceEMA:
		kind = types.IndicatorTypeEMA
	case SourceBid, SourceAsk, SourceMid, SourceTrade:
		return nil
	default:
		return errors.Newf(errors.ErrCodeInvalidParameter, "unknown price source %q", src)
	}

	key := averageKey(src, period)
	if _, ok := m.averages[key]; ok {
		m.timeframe = timeframe

		return nil
	}

	ind, err := m.registry.NewIndicator(kind, period)
	if err != nil {
		return err
	}

	m.averages[key] = indicator.NewCandleFeed(ind, types.CandlePriceClose)
	m.periods[src] = append(m.periods[src], period)
	m.timeframe = timeframe

	return nil
}

// OnBook applies a book update for this symbol.
func (m *Market) OnBook(ev algo.BookUpdate) {
	if ev.Book.Symbol != m.Symbol {
		return
	}

	m.book = ev.Book
	m.hasBook = len(ev.Book.Bids) > 0 || len(ev.Book.Asks) > 0
}

// OnTrades records the most recent trade price.
func (m *Market) OnTrades(ev algo.TradesUpdate) {
	if ev.Symbol != m.Symbol || len(ev.Trades) == 0 {
		return
	}

	latest := ev.Trades[0]
	for _, t := range ev.Trades[1:] {
		if !t.Time.Before(latest.Time) {
			latest = t
		}
	}

	m.last = latest.Price
	m.hasLast = true
}

// OnCandles seeds or updates the tracked moving averages.
func (m *Market) OnCandles(ev algo.CandlesUpdate) {
	if ev.Symbol != m.Symbol || (m.timeframe != "" && ev.Timeframe != m.timeframe) {
		return
	}

	for _, feed := range m.averages {
		if ev.Snapshot {
			feed.Seed(ev.Candles)

			continue
		}

		for _, c := range ev.Candles {
			feed.Push(c)
		}
	}
}

// Book returns the latest book and whether one arrived yet.
func (m *Market) Book() (types.Book, bool) {
	return m.book, m.hasBook
}

// Last returns the latest trade price.
func (m *Market) Last() (float64, bool) {
	return m.last, m.hasLast
}

// HasData reports whether any book or trade arrived.
func (m *Market) HasData() bool {
	return m.hasBook || m.hasLast
}

// Price resolves src. A moving average source resolves through the first period tracked
// for it. The second result is false while the source has no data yet.
func (m *Market) Price(src Source) (float64, bool) {
	return m.PriceOf(src, 0)
}

// PriceOf resolves src like Price, with moving averages taken over period. A zero period
// selects the first period tracked for src.
func (m *Market) PriceOf(src Source, period int) (float64, bool) {
	switch src {
	case SourceBid:
		return m.book.TopBid()
	case SourceAsk:
		return m.book.TopAsk()
	case SourceMid:
		return m.book.Mid()
	case SourceTrade:
		return m.Last()
	case SourceSMA, SourceEMA:
		if period == 0 {
			periods := m.periods[src]
			if len(periods) == 0 {
				return 0, false
			}

			period = periods[0]
		}

		feed, ok := m.averages[averageKey(src, period)]
		if !ok || !feed.Indicator.Ready() {
			return 0, false
		}

		return feed.Indicator.Value(), true
	}

	return 0, false
}

// Side returns the top of book price an order of amount would rest at.
func (m *Market) Side(amount float64) (float64, bool) {
	return m.book.Side(amount)
}

// Taker returns the top of book price an order of amount would take: the ask for buys
// and the bid for sells.
func (m *Market) Taker(amount float64) (float64, bool) {
	if amount > 0 {
		return m.book.TopAsk()
	}

	return m.book.TopBid()
}
