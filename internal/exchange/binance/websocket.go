package binance

import (
	"github.com/adshao/go-binance/v2"
)

// BinanceWsBookTickerEvent is the best bid/ask update of one symbol.
type BinanceWsBookTickerEvent struct {
	UpdateID     int64
	Symbol       string
	BestBidPrice string
	BestBidQty   string
	BestAskPrice string
	BestAskQty   string
}

// BinanceWsTradeEvent is one public trade.
type BinanceWsTradeEvent struct {
	Symbol       string
	TradeID      int64
	Price        string
	Quantity     string
	TradeTime    int64
	IsBuyerMaker bool
}

// BinanceWsKline is the current state of a candle.
type BinanceWsKline struct {
	StartTime int64
	Interval  string
	Open      string
	High      string
	Low       string
	Close     string
	Volume    string
	IsFinal   bool
}

// BinanceWsKlineEvent is a candle update of one symbol.
type BinanceWsKlineEvent struct {
	Symbol string
	Kline  BinanceWsKline
}

type (
	WsBookTickerHandler func(event *BinanceWsBookTickerEvent)
	WsTradeHandler      func(event *BinanceWsTradeEvent)
	WsKlineHandler      func(event *BinanceWsKlineEvent)
	WsErrorHandler      func(err error)
)

// WebSocketService abstracts the Binance market data streams for testing.
// Every Serve call returns a done channel closed when the stream ends and a stop channel
// the caller closes to end it.
type WebSocketService interface {
	WsBookTickerServe(symbol string, handler WsBookTickerHandler, errHandler WsErrorHandler) (doneC, stopC chan struct{}, err error)
	WsTradeServe(symbol string, handler WsTradeHandler, errHandler WsErrorHandler) (doneC, stopC chan struct{}, err error)
	WsKlineServe(symbol, interval string, handler WsKlineHandler, errHandler WsErrorHandler) (doneC, stopC chan struct{}, err error)
}

// realWebSocketService forwards to the go-binance websocket helpers.
type realWebSocketService struct{}

func (realWebSocketService) WsBookTickerServe(symbol string, handler WsBookTickerHandler, errHandler WsErrorHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsBookTickerServe(symbol, func(event *binance.WsBookTickerEvent) {
		handler(&BinanceWsBookTickerEvent{
			UpdateID:     event.UpdateID,
			Symbol:       event.Symbol,
			BestBidPrice: event.BestBidPrice,
			BestBidQty:   event.BestBidQty,
			BestAskPrice: event.BestAskPrice,
			BestAskQty:   event.BestAskQty,
		})
	}, binance.ErrHandler(errHandler))
}

func (realWebSocketService) WsTradeServe(symbol string, handler WsTradeHandler, errHandler WsErrorHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsTradeServe(symbol, func(event *binance.WsTradeEvent) {
		handler(&BinanceWsTradeEvent{
			Symbol:       event.Symbol,
			TradeID:      event.TradeID,
			Price:        event.Price,
			Quantity:     event.Quantity,
			TradeTime:    event.TradeTime,
			IsBuyerMaker: event.IsBuyerMaker,
		})
	}, binance.ErrHandler(errHandler))
}

func (realWebSocketService) WsKlineServe(symbol, interval string, handler WsKlineHandler, errHandler WsErrorHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsKlineServe(symbol, interval, func(event *binance.WsKlineEvent) {
		handler(&BinanceWsKlineEvent{
			Symbol: event.Symbol,
			Kline: BinanceWsKline{
				StartTime: event.Kline.StartTime,
				Interval:  event.Kline.Interval,
				Open:      event.Kline.Open,
				High:      event.Kline.High,
				Low:       event.Kline.Low,
				Close:     event.Kline.Close,
				Volume:    event.Kline.Volume,
				IsFinal:   event.Kline.IsFinal,
			},
		})
	}, binance.ErrHandler(errHandler))
}
