package types

import "time"

// PriceLevel is one side entry of an order book.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// Book is a managed order book snapshot. Bids are sorted best (highest) first, asks best (lowest) first.
type Book struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
	Time   time.Time    `json:"time"`
}

// TopBid returns the best bid price.
func (b Book) TopBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}

	return b.Bids[0].Price, true
}

// TopAsk returns the best ask price.
func (b Book) TopAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}

	return b.Asks[0].Price, true
}

// Mid returns the midpoint between the best bid and ask.
func (b Book) Mid() (float64, bool) {
	bid, okBid := b.TopBid()
	ask, okAsk := b.TopAsk()

	if !okBid || !okAsk {
		return 0, false
	}

	return (bid + ask) / 2, true
}

// Side returns the price an order of the given sign would join: the bid for buys, the ask for sells.
func (b Book) Side(amount float64) (float64, bool) {
	if amount > 0 {
		return b.TopBid()
	}

	return b.TopAsk()
}

// Trade is a public trade print.
type Trade struct {
	ID     int64     `json:"id"`
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Amount float64   `json:"amount"`
	Time   time.Time `json:"time"`
}

// Candle is an OHLCV bar. Time is the bar open time.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Time      time.Time `json:"time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Price returns the candle field selected by p. Unknown selectors use the close.
func (c Candle) Price(p CandlePrice) float64 {
	switch p {
	case CandlePriceOpen:
		return c.Open
	case CandlePriceHigh:
		return c.High
	case CandlePriceLow:
		return c.Low
	case CandlePriceClose:
		return c.Close
	}

	return c.Close
}
