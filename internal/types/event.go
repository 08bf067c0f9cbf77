package types

// ExchangeEvent is anything the connectivity layer delivers to the host.
// The set of implementations is closed: OrderEvent, OrderSnapshotEvent,
// NotificationEvent, TradesEvent, BookEvent and CandlesEvent.
type ExchangeEvent interface {
	exchangeEvent()
}

type OrderEventKind string

const (
	OrderEventNew    OrderEventKind = "new"
	OrderEventUpdate OrderEventKind = "update"
	// OrderEventClose is sent once an order leaves the book; Order.Status tells executed from cancelled.
	OrderEventClose OrderEventKind = "close"
)

// OrderEvent reports a change of one order.
type OrderEvent struct {
	Kind  OrderEventKind
	Order Order
}

// OrderSnapshotEvent lists the open orders known to the exchange, typically on (re)connect.
type OrderSnapshotEvent struct {
	Orders []Order
}

type NotificationKind string

const (
	NotificationInsufficientBalance NotificationKind = "insufficient_balance"
	NotificationMinimumSize         NotificationKind = "minimum_size"
	NotificationActionDisabled      NotificationKind = "action_disabled"
	NotificationOrderError          NotificationKind = "order_error"
)

// NotificationEvent is an account level notice tied to one order.
type NotificationEvent struct {
	Kind    NotificationKind
	Order   Order
	Message string
}

type TradesEvent struct {
	Symbol string
	Trades []Trade
}

type BookEvent struct {
	Book Book
}

// CandlesEvent carries either a historical snapshot (oldest first) or a live update of the latest bar.
type CandlesEvent struct {
	Symbol    string
	Timeframe string
	Candles   []Candle
	Snapshot  bool
}

func (OrderEvent) exchangeEvent()         {}
func (OrderSnapshotEvent) exchangeEvent() {}
func (NotificationEvent) exchangeEvent()  {}
func (TradesEvent) exchangeEvent()        {}
func (BookEvent) exchangeEvent()          {}
func (CandlesEvent) exchangeEvent()       {}

// Matches reports whether a data event belongs to the channel.
func (c Channel) Matches(ev ExchangeEvent) bool {
	switch e := ev.(type) {
	case TradesEvent:
		return c.Type == ChannelTypeTrades && c.Symbol == e.Symbol
	case BookEvent:
		return c.Type == ChannelTypeBook && c.Symbol == e.Book.Symbol
	case CandlesEvent:
		return c.Type == ChannelTypeCandles && c.Symbol == e.Symbol && c.Timeframe == e.Timeframe
	}

	return false
}
