package host

import (
	"context"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"go.uber.org/zap"
)

// Handle routes one exchange event onto the buses of the instances it concerns. Order and
// account events are routed by gid, market data by channel. Events nobody owns are logged
// and dropped.
func (h *Host) Handle(_ context.Context, ev types.ExchangeEvent) {
	switch e := ev.(type) {
	case types.OrderEvent:
		h.post(e.Order.GID, algo.ExchangeOrder{Event: e})
	case types.OrderSnapshotEvent:
		byGID := make(map[int64][]types.Order)
		for _, o := range e.Orders {
			byGID[o.GID] = append(byGID[o.GID], o)
		}

		for gid, orders := range byGID {
			h.post(gid, algo.OrderSnapshot{Orders: orders})
		}
	case types.NotificationEvent:
		h.post(e.Order.GID, notificationEvent(e))
	case types.TradesEvent:
		h.broadcast(types.TradesChannel(e.Symbol), algo.TradesUpdate{Symbol: e.Symbol, Trades: e.Trades})
	case types.BookEvent:
		h.broadcast(types.BookChannel(e.Book.Symbol), algo.BookUpdate{Book: e.Book})
	case types.CandlesEvent:
		h.subs.observeCandles(e)
		h.broadcast(types.CandlesChannel(e.Symbol, e.Timeframe), algo.CandlesUpdate{
			Symbol:    e.Symbol,
			Timeframe: e.Timeframe,
			Candles:   e.Candles,
			Snapshot:  e.Snapshot,
		})
	default:
		h.log.Debug("unhandled exchange event", zap.Any("event", ev))
	}
}

func (h *Host) post(gid int64, ev algo.Event) {
	e, ok := h.lookup(gid)
	if !ok {
		h.log.Debug("no algo order for event", zap.Int64("gid", gid), zap.String("event", ev.Key()))

		return
	}

	e.bus.Post(algo.Envelope{Event: ev, Parent: nil, Timer: 0, Debounce: ""})
}

func (h *Host) broadcast(ch types.Channel, ev algo.Event) {
	for _, gid := range h.subs.members(ch.Key()) {
		h.post(gid, ev)
	}
}

func notificationEvent(n types.NotificationEvent) algo.Event {
	switch n.Kind {
	case types.NotificationInsufficientBalance:
		return algo.ExchangeError{Kind: algo.ErrorInsufficientBalance, Order: n.Order, Message: n.Message}
	case types.NotificationMinimumSize:
		return algo.ExchangeError{Kind: algo.ErrorMinimumSize, Order: n.Order, Message: n.Message}
	case types.NotificationActionDisabled:
		return algo.ExchangeError{Kind: algo.ErrorActionDisabled, Order: n.Order, Message: n.Message}
	case types.NotificationOrderError:
		return algo.OrderError{Order: n.Order, Message: n.Message}
	}

	return algo.OrderError{Order: n.Order, Message: n.Message}
}
